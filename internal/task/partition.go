package task

// Partition is a strided subsequence of file indices owned by one worker:
// Start, Start+Stride, Start+2*Stride, ...
type Partition struct {
	Start  int
	Stride int
}

// WorkerCount returns min(limit, files). It is zero when there are no files.
func WorkerCount(limit, files int) int {
	if limit <= 0 || files <= 0 {
		return 0
	}
	return min(limit, files)
}

// Partitions returns one partition per worker. Together they cover every
// index below any n exactly once.
func Partitions(workers int) []Partition {
	parts := make([]Partition, workers)
	for i := range parts {
		parts[i] = Partition{Start: i, Stride: workers}
	}
	return parts
}

// Indices returns the indices below n owned by the partition, in order.
func (p Partition) Indices(n int) []int {
	if p.Stride <= 0 || p.Start >= n {
		return nil
	}
	idx := make([]int, 0, (n-p.Start+p.Stride-1)/p.Stride)
	for i := p.Start; i < n; i += p.Stride {
		idx = append(idx, i)
	}
	return idx
}
