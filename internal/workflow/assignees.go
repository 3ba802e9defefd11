package workflow

// ExcludeApplicant removes the applicant from a candidate list, unless
// the applicant is the only candidate. Duplicates are dropped and the
// original order is kept.
func ExcludeApplicant(candidates []string, applicantID string) []string {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 1 {
		return unique
	}
	out := unique[:0]
	for _, id := range unique {
		if id != applicantID {
			out = append(out, id)
		}
	}
	return out
}
