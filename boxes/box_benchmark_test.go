package boxes

import "testing"

// BenchmarkIoUNonOverlapping exercises the early exit for disjoint boxes.
func BenchmarkIoUNonOverlapping(b *testing.B) {
	x := Box{0, 0, 100, 100}
	y := Box{200, 200, 300, 300}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IoU(x, y)
	}
}

// BenchmarkIoUPartialOverlap is the common assignment-time case.
func BenchmarkIoUPartialOverlap(b *testing.B) {
	x := Box{0, 0, 100, 100}
	y := Box{50, 50, 150, 150}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IoU(x, y)
	}
}

func BenchmarkEncodeDecodeDelta(b *testing.B) {
	anchor := Box{100, 100, 200, 220}
	gt := Box{110, 96, 215, 230}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d := EncodeDelta(anchor, gt)
		_ = DecodeDelta(anchor, d)
	}
}
