package dedup

// Index remembers product URLs that must not be published again.
// URLs seeded from the remote catalog and URLs marked during the run are
// kept apart so a run can report how many duplicates came from each.
// Index is owned by a single goroutine and is not safe for concurrent use.
type Index struct {
	published   map[string]struct{}
	seenThisRun map[string]struct{}
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{
		published:   make(map[string]struct{}),
		seenThisRun: make(map[string]struct{}),
	}
}

// Seed adds already published product URLs. Empty strings are ignored.
func (i *Index) Seed(urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		i.published[u] = struct{}{}
	}
}

// IsDuplicate reports whether url was published before or already seen in this run
func (i *Index) IsDuplicate(url string) bool {
	if _, ok := i.published[url]; ok {
		return true
	}
	_, ok := i.seenThisRun[url]
	return ok
}

// IsPublished reports whether url came from the seed
func (i *Index) IsPublished(url string) bool {
	_, ok := i.published[url]
	return ok
}

// MarkSeen records url as handled in this run
func (i *Index) MarkSeen(url string) {
	i.seenThisRun[url] = struct{}{}
}

// Len returns the number of distinct URLs in both partitions
func (i *Index) Len() int {
	n := len(i.published)
	for u := range i.seenThisRun {
		if _, ok := i.published[u]; !ok {
			n++
		}
	}
	return n
}

// SeedLen returns the number of seeded URLs
func (i *Index) SeedLen() int {
	return len(i.published)
}
