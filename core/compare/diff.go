package compare

// op is one step of an edit script over two sequences.
type op struct {
	kind byte // '=', '-' or '+'
	i, j int
}

// script returns a shortest edit script turning a into b. Common prefix
// and suffix are matched first so the quadratic table only covers the
// changed middle.
func script(a, b []string) []op {
	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}
	ops := make([]op, 0, len(a)+len(b))
	for k := 0; k < pre; k++ {
		ops = append(ops, op{'=', k, k})
	}
	ops = append(ops, middle(a[pre:len(a)-suf], b[pre:len(b)-suf], pre)...)
	for k := 0; k < suf; k++ {
		ops = append(ops, op{'=', len(a) - suf + k, len(b) - suf + k})
	}
	return ops
}

func middle(a, b []string, off int) []op {
	n, m := len(a), len(b)
	// table[i][j] is the LCS length of a[i:] and b[j:].
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				table[i][j] = table[i+1][j+1] + 1
			case table[i+1][j] >= table[i][j+1]:
				table[i][j] = table[i+1][j]
			default:
				table[i][j] = table[i][j+1]
			}
		}
	}
	var ops []op
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, op{'=', off + i, off + j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, op{'-', off + i, -1})
			i++
		default:
			ops = append(ops, op{'+', -1, off + j})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, op{'-', off + i, -1})
	}
	for ; j < m; j++ {
		ops = append(ops, op{'+', -1, off + j})
	}
	return ops
}
