package consent

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// rawDocument accepts both fixture layouts: the snippet file keyed by
// "consents" and the scenario file keyed by "scenarios". The scenarios key is
// only consulted when consents is absent entirely; a present-but-empty
// consents array means exactly that, an empty policy set.
type rawDocument struct {
	Consents  *[]Policy `json:"consents"`
	Scenarios []Policy  `json:"scenarios"`
}

func (r rawDocument) document() *Document {
	if r.Consents != nil {
		return &Document{Consents: *r.Consents}
	}
	return &Document{Consents: r.Scenarios}
}

var emptyDocument = &Document{Consents: []Policy{}}

// StaticSource serves a fixed document. Useful for tests and for callers
// that assembled a document themselves.
type StaticSource struct {
	Doc *Document
}

func (s StaticSource) Snapshot() *Document {
	if s.Doc == nil {
		return emptyDocument
	}
	return s.Doc
}

// FileSource loads policy documents from disk and publishes immutable
// snapshots. Reload swaps the snapshot atomically, so concurrent Check calls
// never observe a half-updated document. Load failures degrade to the empty
// policy set: every check then resolves to no_consent_found instead of the
// evaluator crashing.
type FileSource struct {
	paths []string
	log   zerolog.Logger
	doc   atomic.Pointer[Document]
}

// NewFileSource probes paths in order on every Reload and keeps the first
// one that parses. The initial load happens here.
func NewFileSource(log zerolog.Logger, paths ...string) *FileSource {
	s := &FileSource{paths: paths, log: log}
	s.Reload()
	return s
}

func (s *FileSource) Snapshot() *Document {
	if doc := s.doc.Load(); doc != nil {
		return doc
	}
	return emptyDocument
}

// Reload re-reads the policy files and publishes a new snapshot.
func (s *FileSource) Reload() {
	for _, path := range s.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("path", path).Msg("consent policy file unreadable")
			}
			continue
		}
		var raw rawDocument
		if err := json.Unmarshal(data, &raw); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("consent policy file malformed, skipping")
			continue
		}
		doc := raw.document()
		s.doc.Store(doc)
		s.log.Info().Str("path", path).Int("scopes", len(doc.Consents)).Msg("consent policy loaded")
		return
	}
	s.doc.Store(emptyDocument)
	s.log.Warn().Strs("paths", s.paths).Msg("no consent policy source available, using empty policy set")
}
