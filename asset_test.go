package immagent

import (
	"testing"
	"time"
)

func TestNowTruncatesToMicroseconds(t *testing.T) {
	for i := 0; i < 100; i++ {
		ts := Now()
		if ts.Truncate(time.Microsecond) != ts {
			t.Fatalf("Now() = %v carries sub-microsecond precision", ts)
		}
	}
}

func TestNowIsUTC(t *testing.T) {
	if loc := Now().Location(); loc != time.UTC {
		t.Errorf("Now() location = %v, want UTC", loc)
	}
}
