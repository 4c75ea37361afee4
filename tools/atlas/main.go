// atlas 將 gorm 模型輸出成 PostgreSQL 的 DDL，供 atlas 做 schema 版本管理
//
//	atlas migrate diff --env gorm
//
// 其中 atlas.hcl 的 external_schema 以 `go run ./tools/atlas` 作為資料來源。
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"artrise/models"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(models.All...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[atlas] Fail to load gorm schema, err=%v\n", err)
		os.Exit(1)
	}
	if _, err := io.WriteString(os.Stdout, stmts); err != nil {
		fmt.Fprintf(os.Stderr, "[atlas] Fail to write schema, err=%v\n", err)
		os.Exit(1)
	}
}
