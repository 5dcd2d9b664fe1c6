package reconcile

// Metadata carries the descriptive fields a controller reports for a
// connection. They are used for filtering and display only.
type Metadata struct {
	Network         string `json:"network"`
	Type            string `json:"type"`
	SourceIP        string `json:"sourceIP"`
	DestinationIP   string `json:"destinationIP"`
	SourcePort      string `json:"sourcePort"`
	DestinationPort string `json:"destinationPort"`
	Host            string `json:"host"`
	DNSMode         string `json:"dnsMode"`
	ProcessPath     string `json:"processPath"`
}

// Conn is one entry of a full connection snapshot. Upload and Download
// are cumulative byte counters for the connection's lifetime. ID is
// opaque and stable for as long as the connection exists.
type Conn struct {
	ID          string   `json:"id"`
	Upload      int64    `json:"upload"`
	Download    int64    `json:"download"`
	Start       string   `json:"start"`
	Chains      []string `json:"chains,omitempty"`
	Rule        string   `json:"rule,omitempty"`
	RulePayload string   `json:"rulePayload,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// Displayed is a Conn augmented with the byte deltas observed since the
// previous snapshot. The deltas are ephemeral: they are recomputed on
// every merge and are zero for a connection with no prior baseline.
type Displayed struct {
	Conn
	CurUpload   int64 `json:"curUpload"`
	CurDownload int64 `json:"curDownload"`
}

// Merge maps a new full snapshot onto the previous displayed list,
// keeping surviving connections at the index they already occupy so the
// view stays visually stable across refreshes.
//
// Every entry of next appears exactly once in the result, which has
// exactly len(next) slots. An entry whose ID was displayed at index i
// of prev stays at index i and gets counter deltas against the previous
// reading. All other entries, including those whose previous index no
// longer fits the (shrunken) snapshot, fill the remaining free slots in
// snapshot order with zero deltas. Entries with an empty ID never
// match a previous position.
func Merge(prev []Displayed, next []Conn) []Displayed {
	n := len(next)
	out := make([]Displayed, n)
	filled := make([]bool, n)

	prevIdx := make(map[string]int, len(prev))
	for i := len(prev) - 1; i >= 0; i-- {
		if prev[i].ID != "" {
			prevIdx[prev[i].ID] = i
		}
	}

	var pool []Displayed
	for _, c := range next {
		i, ok := prevIdx[c.ID]
		if c.ID == "" || !ok || i >= n {
			pool = append(pool, Displayed{Conn: c})
			continue
		}
		delete(prevIdx, c.ID)
		out[i] = Displayed{
			Conn:        c,
			CurUpload:   c.Upload - prev[i].Upload,
			CurDownload: c.Download - prev[i].Download,
		}
		filled[i] = true
	}

	// Every snapshot entry was either placed or pooled, so the pool
	// count equals the number of free slots.
	p := 0
	for i := 0; i < n && p < len(pool); i++ {
		if !filled[i] {
			out[i] = pool[p]
			p++
		}
	}

	return out
}
