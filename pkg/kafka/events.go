package kafka

// IndexBuiltKey is the partition key of every IndexBuilt event, so all
// builds of one deployment are ordered.
const IndexBuiltKey = "index"

// IndexBuilt announces a newly committed dictionary/postings pair.
type IndexBuilt struct {
	BuildID        string `json:"build_id"`
	DictionaryPath string `json:"dictionary_path"`
	PostingsPath   string `json:"postings_path"`
	Docs           int    `json:"docs"`
	Terms          int    `json:"terms"`
	Blocks         int    `json:"blocks"`
}
