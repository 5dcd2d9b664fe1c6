package feed

import (
	"github.com/connscope/connscope/pkg/connscope/reconcile"
)

// Update is one full /connections report from a controller: totals for
// the proxy plus one entry per active connection with cumulative byte
// counters.
//
// Controllers may legitimately omit or null the connections field; a
// nil slice is treated as an empty snapshot everywhere downstream.
type Update struct {
	UploadTotal   int64            `json:"uploadTotal"`
	DownloadTotal int64            `json:"downloadTotal"`
	Connections   []reconcile.Conn `json:"connections"`
}
