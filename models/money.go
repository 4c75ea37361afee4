package models

import "github.com/shopspring/decimal"

func init() {
	// 金額在 JSON 中以數字輸出，與價格欄位的原始格式一致
	decimal.MarshalJSONWithoutQuotes = true
}
