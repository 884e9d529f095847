package getm

import "testing"

func TestPlanParts(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		count     int
		lastLen   int64
	}{
		{"exact multiple", 10 * 1024 * 1024, 1024 * 1024, 10, 1024 * 1024},
		{"trailing short part", 10*1024*1024 + 17, 1024 * 1024, 11, 17},
		{"single byte", 1, 1024, 1, 1},
		{"smaller than chunk", 512, 1024, 1, 512},
		{"one byte short of boundary", 2047, 1024, 2, 1023},
		{"one byte past boundary", 2049, 1024, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := planParts(tt.size, tt.chunkSize)
			if len(parts) != tt.count {
				t.Fatalf("expected %d parts, got %d", tt.count, len(parts))
			}
			if got := parts[len(parts)-1].length; got != tt.lastLen {
				t.Errorf("expected last part length %d, got %d", tt.lastLen, got)
			}

			// Parts must tile the byte range exactly.
			var offset, total int64
			for i, p := range parts {
				if p.index != i {
					t.Errorf("part %d has index %d", i, p.index)
				}
				if p.offset != offset {
					t.Errorf("part %d at offset %d, expected %d", i, p.offset, offset)
				}
				if p.length <= 0 || p.length > tt.chunkSize {
					t.Errorf("part %d has length %d outside (0, %d]", i, p.length, tt.chunkSize)
				}
				offset += p.length
				total += p.length
			}
			if total != tt.size {
				t.Errorf("parts cover %d bytes, expected %d", total, tt.size)
			}
		})
	}
}

func TestPlanPartsEmpty(t *testing.T) {
	if parts := planParts(0, 1024); len(parts) != 0 {
		t.Errorf("expected no parts for empty object, got %d", len(parts))
	}
}
