package reconcile

import (
	"fmt"
	"sort"
	"time"
)

// Ordering selects how a displayed list is sorted for the view.
type Ordering int

const (
	// OrderDefault sorts by start time, most recent first. Connections
	// with a missing or unparseable start timestamp sort last.
	OrderDefault Ordering = iota
	// OrderUploadSpeed sorts by instantaneous upload rate, descending.
	OrderUploadSpeed
	// OrderDownloadSpeed sorts by instantaneous download rate, descending.
	OrderDownloadSpeed
)

func (o Ordering) String() string {
	switch o {
	case OrderUploadSpeed:
		return "upload-speed"
	case OrderDownloadSpeed:
		return "download-speed"
	default:
		return "default"
	}
}

// ParseOrdering maps a configuration token to an Ordering. The empty
// string selects the default ordering.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "", "default":
		return OrderDefault, nil
	case "upload-speed":
		return OrderUploadSpeed, nil
	case "download-speed":
		return OrderDownloadSpeed, nil
	}
	return OrderDefault, fmt.Errorf("unknown ordering %q", s)
}

// Sort orders conns in place. The sort is stable so that ties keep
// their reconciled positions.
func (o Ordering) Sort(conns []Displayed) {
	switch o {
	case OrderUploadSpeed:
		sort.SliceStable(conns, func(i, j int) bool {
			return conns[i].CurUpload > conns[j].CurUpload
		})
	case OrderDownloadSpeed:
		sort.SliceStable(conns, func(i, j int) bool {
			return conns[i].CurDownload > conns[j].CurDownload
		})
	default:
		sort.SliceStable(conns, func(i, j int) bool {
			return startTime(conns[i].Start).After(startTime(conns[j].Start))
		})
	}
}

// startTime parses a controller start timestamp. The zero time is
// returned for anything unparseable, which sorts as earliest.
func startTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
