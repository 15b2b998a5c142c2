package segment

import "sort"

// Sort reorders b's rows ascending by the primary-key column vector
// (nulls-first), tie-broken by the timestamp column. It returns a new
// RecordBatch; b itself is left untouched. The underlying sort.SliceStable
// keeps equal-key rows in their original relative order beyond the explicit
// timestamp tiebreak, which last-write-wins resolution downstream of the
// merge depends on.
func Sort(b RecordBatch) RecordBatch {
	n := b.NumRows()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	numPK := b.Schema.NumPrimaryKey
	tsIdx := b.Schema.TimestampIndex

	sort.SliceStable(perm, func(x, y int) bool {
		i, j := perm[x], perm[y]
		if c := compareRows(b, i, j, numPK); c != 0 {
			return c < 0
		}
		return compareCell(b.Columns[tsIdx], i, j) < 0
	})

	return permute(b, perm)
}

// compareRows compares rows i and j across the first numPK columns,
// nulls-first, returning <0, 0, or >0.
func compareRows(b RecordBatch, i, j, numPK int) int {
	for k := 0; k < numPK; k++ {
		if c := compareCell(b.Columns[k], i, j); c != 0 {
			return c
		}
	}
	return 0
}

// CompareKeys compares row i of a against row j of b over the first numPK
// columns plus the timestamp column, nulls-first. The batches must share a
// schema. The scan merge uses this to interleave rows from different
// segments in write-sort order.
func CompareKeys(a RecordBatch, i int, b RecordBatch, j int, numPK, tsIdx int) int {
	for k := 0; k < numPK; k++ {
		if c := compareCells(a.Columns[k], i, b.Columns[k], j); c != 0 {
			return c
		}
	}
	return compareCells(a.Columns[tsIdx], i, b.Columns[tsIdx], j)
}

// CompareValues compares two cell values of the same dynamic type.
func CompareValues(a, b any) int { return compareAny(a, b) }

// compareCells is compareCell across two distinct columns.
func compareCells(ca Column, i int, cb Column, j int) int {
	vi, vj := ca.IsValid(i), cb.IsValid(j)
	switch {
	case !vi && !vj:
		return 0
	case !vi:
		return -1
	case !vj:
		return 1
	}
	return compareAny(ca.Values[i], cb.Values[j])
}

// compareCell compares cell i and j of one column; a null sorts before any
// non-null value (nulls-first).
func compareCell(c Column, i, j int) int {
	vi, vj := c.IsValid(i), c.IsValid(j)
	switch {
	case !vi && !vj:
		return 0
	case !vi:
		return -1
	case !vj:
		return 1
	}
	return compareAny(c.Values[i], c.Values[j])
}

func compareAny(a, b any) int {
	switch av := a.(type) {
	case int8:
		return cmpOrdered(av, b.(int8))
	case int16:
		return cmpOrdered(av, b.(int16))
	case int32:
		return cmpOrdered(av, b.(int32))
	case int64:
		return cmpOrdered(av, b.(int64))
	case uint8:
		return cmpOrdered(av, b.(uint8))
	case uint16:
		return cmpOrdered(av, b.(uint16))
	case uint32:
		return cmpOrdered(av, b.(uint32))
	case uint64:
		return cmpOrdered(av, b.(uint64))
	case float32:
		return cmpOrdered(av, b.(float32))
	case float64:
		return cmpOrdered(av, b.(float64))
	case string:
		return cmpOrdered(av, b.(string))
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case []byte:
		bv := b.([]byte)
		for k := 0; k < len(av) && k < len(bv); k++ {
			if av[k] != bv[k] {
				return int(av[k]) - int(bv[k])
			}
		}
		return len(av) - len(bv)
	default:
		return 0
	}
}

type ordered interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64 | ~string
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// permute returns a copy of b with rows reordered according to perm.
func permute(b RecordBatch, perm []int) RecordBatch {
	out := RecordBatch{Schema: b.Schema, Columns: make([]Column, len(b.Columns))}
	for ci, c := range b.Columns {
		nc := Column{Values: make([]any, len(perm))}
		if c.Valid != nil {
			nc.Valid = make([]bool, len(perm))
		}
		for newIdx, oldIdx := range perm {
			nc.Values[newIdx] = c.Values[oldIdx]
			if c.Valid != nil {
				nc.Valid[newIdx] = c.Valid[oldIdx]
			}
		}
		out.Columns[ci] = nc
	}
	return out
}
