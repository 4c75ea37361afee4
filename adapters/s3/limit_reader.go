package s3

import (
	"fmt"
	"io"
)

// SizeLimitError 表示讀取的內容超過上限
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("content exceeds %s", FormatBytes(e.Limit))
}

// LimitReader 包裝 r，讀到第 limit+1 個位元組時返回 *SizeLimitError
// 與 io.LimitReader 不同，超過上限不會被當成正常的 EOF
func LimitReader(r io.Reader, limit int64) io.Reader {
	return &limitReader{src: r, limit: limit, remaining: limit}
}

type limitReader struct {
	src       io.Reader
	limit     int64
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	// 多讀一個位元組就能知道是否超過上限
	if probe := l.remaining + 1; int64(len(p)) > probe {
		p = p[:probe]
	}
	n, err := l.src.Read(p)
	if int64(n) > l.remaining {
		n = int(l.remaining)
		l.remaining = 0
		return n, &SizeLimitError{Limit: l.limit}
	}
	l.remaining -= int64(n)
	return n, err
}

// ReadAllLimited 讀出 r 的全部內容，超過 limit 時返回 *SizeLimitError
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(LimitReader(r, limit))
}
