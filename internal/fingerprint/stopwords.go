package fingerprint

import "strings"

// Stop words cover the high-frequency function words of English and Russian
// feeds. The list is intentionally short: the TF-IDF weighting already damps
// common terms, stop words only keep them out of the simhash entirely.
var stopWords = buildStopSet(
	"a an and are as at be but by for from has have if in into is it its of on or that the to was were will with not this",
	"и в во не на я он она оно они мы вы ты с со как а то все она так его но да у же за бы по только ее мне было вот от о из ему теперь когда даже ну ли если уже или ни быть был него до вас нибудь снова них чем для при что это этот эта эти там тут",
)

func buildStopSet(lists ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range strings.Fields(list) {
			set[w] = struct{}{}
		}
	}
	return set
}

func isStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
