// Package datasets matches ingest subjects against training dataset
// directories and links ingested media into them.
package datasets

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ingesthub.systems/ingesthub/internal/db"
)

var titleCaser = cases.Title(language.English)

// CanonicalSubjectName normalizes a raw subject name for storage: trimmed,
// underscores replaced with spaces, title case. "jane_doe" becomes "Jane Doe".
func CanonicalSubjectName(name string) string {
	return titleCaser.String(strings.TrimSpace(strings.ReplaceAll(name, "_", " ")))
}

// normalize folds a name for comparison: lowercase, separators to spaces.
func normalize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}

// Match describes one candidate dataset directory for a subject.
type Match struct {
	DirName   string  `json:"dir_name"`
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
}

// ratio is a similarity measure in [0,1] based on edit distance.
func ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// MatchDatasetDirs ranks dataset directory names against a subject name
// using tiered matching: exact beats prefix beats substring beats fuzzy.
// An exact match short-circuits; otherwise up to five candidates return,
// best first with directory name as tiebreaker.
func MatchDatasetDirs(subjectName string, dirs []string) []Match {
	normSubj := normalize(subjectName)
	if normSubj == "" {
		return nil
	}

	var candidates []Match
	seen := map[string]bool{}

	for _, d := range dirs {
		normDir := normalize(d)

		if normDir == normSubj {
			return []Match{{DirName: d, Score: 1.0, MatchType: "exact"}}
		}

		if strings.HasPrefix(normDir, normSubj) || strings.HasPrefix(normSubj, normDir) {
			if !seen[d] {
				candidates = append(candidates, Match{DirName: d, Score: 0.9, MatchType: "prefix"})
				seen[d] = true
			}
			continue
		}

		if strings.Contains(normDir, normSubj) || strings.Contains(normSubj, normDir) {
			if !seen[d] {
				candidates = append(candidates, Match{DirName: d, Score: 0.8, MatchType: "substring"})
				seen[d] = true
			}
			continue
		}

		best := ratio(normSubj, normDir)

		// First-token comparison, only meaningful on tokens of 3+ chars
		firstSubj := firstToken(normSubj)
		firstDir := firstToken(normDir)
		if len(firstSubj) >= 3 && len(firstDir) >= 3 {
			if r := ratio(firstSubj, firstDir); r >= 0.8 && r > best {
				best = r
			}
		}

		if best >= 0.75 && !seen[d] {
			candidates = append(candidates, Match{DirName: d, Score: round3(best), MatchType: "fuzzy"})
			seen[d] = true
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DirName < candidates[j].DirName
	})

	if len(candidates) > 5 {
		candidates = candidates[:5]
	}
	return candidates
}

func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func round3(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

// ListDirs returns the sorted directory names under the datasets root. A
// missing root is not an error, only an empty result.
func ListDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs
}

// Resolution is the dataset assignment proposal for one subject.
type Resolution struct {
	SubjectName string  `json:"subject_name"`
	ExistingDir string  `json:"existing_dir,omitempty"`
	Suggestions []Match `json:"suggestions"`
}

// Resolver combines stored subject assignments with directory scanning.
type Resolver struct {
	store SubjectDirStore
	root  string
}

// SubjectDirStore is the slice of the database the resolver needs.
type SubjectDirStore interface {
	GetSubjectByName(ctx context.Context, projectID pgtype.UUID, name string) (*db.Subject, error)
}

// NewResolver creates a resolver over the datasets root directory.
func NewResolver(store SubjectDirStore, root string) *Resolver {
	return &Resolver{store: store, root: root}
}

// Resolve proposes a dataset directory per subject name, echoing the name
// as given. A stored assignment is reported alongside the ranked candidates
// so the operator can still pick a different directory.
func (r *Resolver) Resolve(ctx context.Context, projectID pgtype.UUID, names []string) []Resolution {
	dirs := ListDirs(r.root)

	out := make([]Resolution, 0, len(names))
	for _, raw := range names {
		name := CanonicalSubjectName(raw)
		res := Resolution{SubjectName: raw}

		if r.store != nil {
			if subj, err := r.store.GetSubjectByName(ctx, projectID, name); err == nil && subj.DatasetDir.Valid {
				res.ExistingDir = subj.DatasetDir.String
			}
		}

		res.Suggestions = MatchDatasetDirs(name, dirs)
		if res.Suggestions == nil {
			res.Suggestions = []Match{}
		}
		out = append(out, res)
	}
	return out
}
