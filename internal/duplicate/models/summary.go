package models

// Bucket is a confidence range used by the dashboard summary.
type Bucket string

const (
	Bucket90to100 Bucket = "90-100"
	Bucket80to89  Bucket = "80-89"
	Bucket70to79  Bucket = "70-79"
	Bucket50to69  Bucket = "50-69"
	Bucket0to49   Bucket = "0-49"
)

// Buckets lists every bucket from the highest range down.
var Buckets = []Bucket{Bucket90to100, Bucket80to89, Bucket70to79, Bucket50to69, Bucket0to49}

// BucketFor places score in its bucket.
func BucketFor(score int) Bucket {
	switch {
	case score >= 90:
		return Bucket90to100
	case score >= 80:
		return Bucket80to89
	case score >= 70:
		return Bucket70to79
	case score >= 50:
		return Bucket50to69
	}
	return Bucket0to49
}

// Summary counts candidates in a scope by bucket and status. Every bucket
// and status is present, with zero counts where nothing matched.
type Summary struct {
	Total   int                       `json:"total"`
	Buckets map[Bucket]map[Status]int `json:"buckets"`
}

func NewSummary() *Summary {
	s := &Summary{Buckets: make(map[Bucket]map[Status]int, len(Buckets))}
	for _, b := range Buckets {
		s.Buckets[b] = map[Status]int{
			StatusPending:      0,
			StatusApprovedLink: 0,
			StatusRejected:     0,
			StatusMerged:       0,
		}
	}
	return s
}

// Add counts n candidates of the given bucket and status.
func (s *Summary) Add(b Bucket, st Status, n int) {
	s.Buckets[b][st] += n
	s.Total += n
}

// ScanResult is the outcome of a scan. Candidates holds the pending pairs
// found; pairs a reviewer already resolved are only counted in Resolved.
// Partial is set when the scan stopped early; candidates stored before that
// remain valid.
type ScanResult struct {
	Candidates []*Candidate `json:"candidates"`
	Resolved   int          `json:"already_resolved"`
	Warnings   []string     `json:"warnings"`
	Scanned    int          `json:"scanned_persons"`
	Compared   int          `json:"compared_pairs"`
	Partial    bool         `json:"partial"`
}
