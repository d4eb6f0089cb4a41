package codec

import "testing"

func benchmarkCodec(b *testing.B, ct CodecType) {
	c := GetCodec(ct)
	msg := &sample{Op: "TtvCalc", Values: make([]float64, 64), Nested: &sample{Op: "inner", A: true}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := c.Encode(msg)
		if err != nil {
			b.Fatal(err)
		}
		var out sample
		if err := c.Decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecJSON(b *testing.B) { benchmarkCodec(b, CodecTypeJSON) }
func BenchmarkCodecCBOR(b *testing.B) { benchmarkCodec(b, CodecTypeCBOR) }
