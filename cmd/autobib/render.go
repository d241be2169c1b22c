package main

import (
	"fmt"
	"strings"

	"github.com/autobib/autobib/identifier"
	"github.com/autobib/autobib/record"
)

// renderBibTeX formats d as a BibTeX entry under citationKey, per spec §6:
// "@<entry_type>{<citation_key>, <key> = {<value>}, ...}" with fields sorted
// ascending by key. It builds the text itself from the core's decoded Data;
// no BibTeX library is involved.
func renderBibTeX(citationKey string, d record.Data) (string, error) {
	if err := identifier.ValidateCitationKey(citationKey); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", d.EntryType, citationKey)
	fields := d.Sorted()
	for i, f := range fields {
		sep := ","
		if i == len(fields)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %s = {%s}%s\n", f.Key, f.Value, sep)
	}
	b.WriteString("}\n")
	return b.String(), nil
}
