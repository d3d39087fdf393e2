package audio

import "testing"

func f(v float64) *float64 { return &v }

func TestTargetGainMb(t *testing.T) {
	tests := []struct {
		name       string
		baseDb     float64
		boostDb    *float64
		loudnessDb *float64
		wantMb     int
		wantReject bool
	}{
		{
			name:       "boost and negative loudness add up",
			baseDb:     5.0,
			boostDb:    f(5.0),
			loudnessDb: f(-3.0),
			wantMb:     1300,
		},
		{
			name:   "no measurements yields base gain",
			baseDb: 5.0,
			wantMb: 500,
		},
		{
			name:       "loud track is attenuated",
			baseDb:     5.0,
			loudnessDb: f(7.5),
			wantMb:     -250,
		},
		{
			name:       "extreme positive loudness is rejected",
			baseDb:     5.0,
			loudnessDb: f(31.0),
			wantMb:     500,
			wantReject: true,
		},
		{
			name:       "extreme negative loudness is rejected",
			baseDb:     5.0,
			boostDb:    f(1.0),
			loudnessDb: f(-25.0),
			wantMb:     600,
			wantReject: true,
		},
		{
			name:       "boundary loudness is applied",
			baseDb:     0,
			loudnessDb: f(20.0),
			wantMb:     -2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rejected := TargetGainMb(tt.baseDb, tt.boostDb, tt.loudnessDb)
			if got != tt.wantMb {
				t.Errorf("gain = %d mB, want %d", got, tt.wantMb)
			}
			if rejected != tt.wantReject {
				t.Errorf("rejected = %v, want %v", rejected, tt.wantReject)
			}
		})
	}
}
