package sse_test

import (
	"sync"
)

// Message 表示一個 SSE 訊息，包含頻道與資料字段。
type Message struct {
	Room string `json:"room"`
	Data string `json:"data"`
}

// fakeSource 以記憶體channel模擬上游
type fakeSource struct {
	ch      chan Message
	once    sync.Once
	started bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan Message, 10)}
}

func (f *fakeSource) Start()                     { f.started = true }
func (f *fakeSource) Subscribe() <-chan Message { return f.ch }
func (f *fakeSource) Close()                     { f.once.Do(func() { close(f.ch) }) }

func roomOf(m Message) string { return m.Room }
