package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// parseCatches parses --catch values of the form "species=count[@len,len]".
// A missing count counts one fish per length.
func parseCatches(values []string) (harvest.ItemizedCatches, error) {
	var items harvest.ItemizedCatches
	for _, v := range values {
		name, rest, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --catch %q: expected species=count[@len,len]", v)
		}
		countPart, lengthPart, _ := strings.Cut(rest, "@")

		item := harvest.SpeciesCatch{Species: harvest.Species(strings.TrimSpace(name))}
		if s := strings.TrimSpace(countPart); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid count in --catch %q", v)
			}
			item.Count = n
		}
		for _, l := range strings.Split(lengthPart, ",") {
			if l = strings.TrimSpace(l); l != "" {
				item.Lengths = append(item.Lengths, l)
			}
		}
		items = append(items, item)
	}
	return items, nil
}
