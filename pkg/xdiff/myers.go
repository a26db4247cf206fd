package xdiff

// editScript marks, along a shortest edit script from a to b, the lines of
// a that are deleted and the lines of b that are inserted. Unmarked lines
// pair up in order as equal.
func editScript(a, b []int) (delA, insB []bool) {
	delA = make([]bool, len(a))
	insB = make([]bool, len(b))

	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	suf := 0
	for suf < len(a)-pre && suf < len(b)-pre && a[len(a)-1-suf] == b[len(b)-1-suf] {
		suf++
	}
	myers(a[pre:len(a)-suf], b[pre:len(b)-suf], delA[pre:len(a)-suf], insB[pre:len(b)-suf])
	return delA, insB
}

// myers runs the greedy forward search, keeping the frontier reached
// before each edit distance, then walks the frontiers back from the end.
func myers(a, b []int, delA, insB []bool) {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		for i := range delA {
			delA[i] = true
		}
		for j := range insB {
			insB[j] = true
		}
		return
	}

	off := n + m
	v := make([]int, 2*off+2)
	var trace [][]int
	for d := 0; d <= n+m; d++ {
		trace = append(trace, append([]int(nil), v...))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
				x = v[off+k+1]
			} else {
				x = v[off+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[off+k] = x
			if x >= n && y >= m {
				walkBack(trace, off, n, m, d, delA, insB)
				return
			}
		}
	}
}

// walkBack replays the search from (n, m) to the origin. trace[d] is the
// frontier reached with d-1 edits.
func walkBack(trace [][]int, off, n, m, d int, delA, insB []bool) {
	x, y := n, m
	for ; d > 0; d-- {
		v := trace[d]
		k := x - y
		prevK := k - 1
		if k == -d || (k != d && v[off+k-1] < v[off+k+1]) {
			prevK = k + 1
		}
		prevX := v[off+prevK]
		prevY := prevX - prevK
		if prevK == k+1 {
			insB[prevY] = true
		} else {
			delA[prevX] = true
		}
		x, y = prevX, prevY
	}
}
