package enrich

import (
	"afdata/core"
	"afdata/taxonomy"
)

// TagLookup resolves public tag names against the local taxonomy
type TagLookup interface {
	Lookup(tag string) (taxonomy.Entry, bool)
}

// ClassifyTags builds the tag fields of a record. Tags missing from the taxonomy are kept
// in all_tags and returned as misses. Exploit data is only collected when exploits is set.
func ClassifyTags(tags []string, lookup TagLookup, exploits *ExploitTable) (*core.TagProfile, []string) {
	p := &core.TagProfile{
		AllTags:            append([]string{}, tags...),
		PriorityTagsPublic: []string{},
		PriorityTagsName:   []string{},
		TagClasses:         []string{},
		MalwareTags:        []string{},
		CampaignTags:       []string{},
		ActorTags:          []string{},
		ExploitTags:        []string{},
	}

	var misses []string
	classes := make(map[string]struct{})
	groups := make(map[string]struct{})

	for _, tag := range tags {
		if exploits != nil {
			if cve, ok := cveFromTag(tag); ok {
				p.ExploitData = append(p.ExploitData, exploits.Lookup(cve))
			}
		}

		var entry taxonomy.Entry
		ok := false
		if lookup != nil {
			entry, ok = lookup.Lookup(tag)
		}
		if !ok {
			misses = append(misses, tag)
			continue
		}

		if entry.Priority() {
			p.PriorityTagsPublic = append(p.PriorityTagsPublic, tag)
			p.PriorityTagsName = append(p.PriorityTagsName, entry.Name)
			if _, seen := classes[entry.Class]; !seen {
				classes[entry.Class] = struct{}{}
				p.TagClasses = append(p.TagClasses, entry.Class)
			}
			switch entry.Class {
			case taxonomy.ClassMalwareFamily:
				p.MalwareTags = append(p.MalwareTags, entry.Name)
			case taxonomy.ClassCampaign:
				p.CampaignTags = append(p.CampaignTags, entry.Name)
			case taxonomy.ClassActor:
				p.ActorTags = append(p.ActorTags, entry.Name)
			case taxonomy.ClassExploit:
				p.ExploitTags = append(p.ExploitTags, entry.Name)
			}
		}

		for _, g := range entry.GroupNames() {
			if _, seen := groups[g]; !seen {
				groups[g] = struct{}{}
				p.TagGroups = append(p.TagGroups, g)
			}
		}
	}
	return p, misses
}
