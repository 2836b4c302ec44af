package infrastructure

import (
	"sort"
	"strings"
)

const expandPrefix = "results.result."

// validExpands is the set of expansions the result endpoints understand.
var validExpands = map[string]struct{}{
	"artifacts":                   {},
	"comments":                    {},
	"labels":                      {},
	"jiraIssues":                  {},
	"stages":                      {},
	"stages.stage":                {},
	"stages.stage.results":        {},
	"stages.stage.results.result": {},
}

// BuildExpand keeps the known expansion keys, prefixes each with
// "results.result." and joins them with commas. Unknown keys are dropped
// silently. The output is sorted so repeated calls produce the same string.
func BuildExpand(expand []string) string {
	seen := make(map[string]struct{}, len(expand))
	keys := make([]string, 0, len(expand))
	for _, e := range expand {
		if _, ok := validExpands[e]; !ok {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		keys = append(keys, expandPrefix+e)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
