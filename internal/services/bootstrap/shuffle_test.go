package bootstrap

import (
	"reflect"
	"testing"
)

func TestMulberry32Sequence(t *testing.T) {
	rng := NewMulberry32(12345)
	want := []uint32{4207900869, 1317490944, 2079646450}
	for i, w := range want {
		if got := rng.Uint32(); got != w {
			t.Fatalf("draw %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestMulberry32Range(t *testing.T) {
	rng := NewMulberry32(1)
	for i := 0; i < 10000; i++ {
		v := rng.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("draw %d out of range: %v", i, v)
		}
	}
}

func TestShuffleFixedSeeds(t *testing.T) {
	cases := []struct {
		seed int64
		want []int
	}{
		{42, []int{0, 7, 3, 5, 2, 1, 8, 9, 4, 6}},
		{12345, []int{6, 4, 8, 0, 1, 7, 5, 3, 2, 9}},
	}
	for _, tc := range cases {
		s := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
		Shuffle(s, NewMulberry32(tc.seed))
		if !reflect.DeepEqual(s, tc.want) {
			t.Fatalf("seed %d: expected %v, got %v", tc.seed, tc.want, s)
		}
	}
}

func TestShuffleEmptyAndSingle(t *testing.T) {
	rng := NewMulberry32(3)
	var empty []int
	Shuffle(empty, rng)
	one := []int{9}
	Shuffle(one, rng)
	if one[0] != 9 {
		t.Fatalf("single element changed: %v", one)
	}
}

func TestSeedFor(t *testing.T) {
	if SeedFor(12345, 0) != 12345 || SeedFor(12345, 3) != 15345 {
		t.Fatalf("unexpected derived seeds")
	}
}
