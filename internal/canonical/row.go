package canonical

// WarnNoResolvableFields marks a row for which no canonical field resolved.
// Such a row is still carried through the pipeline; it is never dropped.
const WarnNoResolvableFields = "no resolvable fields"

// Row is the ephemeral canonical representation of one input row. It is
// recomputed on every stage invocation and only persisted once rules and
// exclusions have been applied.
type Row struct {
	RowNo  int
	Values map[Field]Value

	// Extra carries ad hoc fields that are not part of the canonical
	// schema but were explicitly mapped; they flow into staged data
	// untyped.
	Extra map[string]string

	// appliedRules records which rule IDs have fired on this row, in
	// firing order. A rule never fires twice on the same row.
	appliedRules []string
	appliedSet   map[string]bool

	Exclude        bool
	ExcludeComment string
	Warnings       []string
}

// NewRow returns an empty canonical row for the given source row number.
func NewRow(rowNo int) *Row {
	return &Row{
		RowNo:  rowNo,
		Values: make(map[Field]Value),
	}
}

// Get returns the current value of a field, null if unset.
func (r *Row) Get(f Field) Value {
	if v, ok := r.Values[f]; ok {
		return v
	}
	return Null()
}

// Set assigns a field value.
func (r *Row) Set(f Field, v Value) {
	r.Values[f] = v
}

// HasRule reports whether the rule has already fired on this row.
func (r *Row) HasRule(id string) bool {
	return r.appliedSet[id]
}

// MarkRule records a fired rule. Marking the same rule twice is a no-op, so
// re-processing a batch cannot duplicate side effects.
func (r *Row) MarkRule(id string) {
	if r.appliedSet == nil {
		r.appliedSet = make(map[string]bool)
	}
	if r.appliedSet[id] {
		return
	}
	r.appliedSet[id] = true
	r.appliedRules = append(r.appliedRules, id)
}

// AppliedRules returns the fired rule IDs in firing order.
func (r *Row) AppliedRules() []string {
	out := make([]string, len(r.appliedRules))
	copy(out, r.appliedRules)
	return out
}

// SetExclude flags the row excluded with a comment. An already-excluded row
// keeps its original comment.
func (r *Row) SetExclude(comment string) {
	if r.Exclude {
		return
	}
	r.Exclude = true
	r.ExcludeComment = comment
}

// Warn appends a data-quality warning to the row.
func (r *Row) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// ResolvedFieldCount returns the number of non-null canonical values.
func (r *Row) ResolvedFieldCount() int {
	n := 0
	for _, v := range r.Values {
		if !v.IsNull() {
			n++
		}
	}
	return n
}
