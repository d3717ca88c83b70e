package parse

import (
	"errors"
	"testing"
	"time"
)

func TestDate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"slashes", "15/08/1990", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"dashes", "15-08-1990", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"dots", "15.08.1990", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"spaces", "15 8 1990", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"iso", "1990-08-15", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"month first fallback", "08/15/1990", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"two digit year late", "15/08/90", time.Date(1990, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"two digit year early", "01/02/05", time.Date(2005, 2, 1, 0, 0, 0, 0, time.UTC), false},
		{"no year", "15/08", time.Date(1995, 8, 15, 0, 0, 0, 0, time.UTC), false},
		{"garbage", "not-a-date", time.Time{}, true},
		{"impossible day", "31/02/1990", time.Time{}, true},
		{"empty", "  ", time.Time{}, true},
		{"too many parts", "1/2/3/4", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Date(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Date(%q) = %v, want error", tt.in, got)
				}
				var perr *Error
				if !errors.As(err, &perr) {
					t.Errorf("error %v is not a *parse.Error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Date(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Date(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDateUnknown(t *testing.T) {
	_, err := Date("Don't know", time.Now())
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"2:30 PM", Clock{Hour: 14, Minute: 30}, false},
		{"2:30pm", Clock{Hour: 14, Minute: 30}, false},
		{"12 am", Clock{Hour: 0, Minute: 0}, false},
		{"12pm", Clock{Hour: 12, Minute: 0}, false},
		{"7 a.m.", Clock{Hour: 7, Minute: 0}, false},
		{"14:45", Clock{Hour: 14, Minute: 45}, false},
		{"14.45", Clock{Hour: 14, Minute: 45}, false},
		{"14-45", Clock{Hour: 14, Minute: 45}, false},
		{"14 45", Clock{Hour: 14, Minute: 45}, false},
		{"9", Clock{Hour: 9, Minute: 0}, false},
		{"unknown", Noon, false},
		{"25:00", Clock{}, true},
		{"13pm", Clock{}, true},
		{"10:75", Clock{}, true},
		{"evening", Clock{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TimeOfDay(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TimeOfDay(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("TimeOfDay(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("TimeOfDay(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCity(t *testing.T) {
	loc, err := City("  MUMBAI ", "delhi")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Name != "Mumbai" || loc.Lat != 19.0760 {
		t.Errorf("unexpected Mumbai location: %+v", loc)
	}

	loc, err = City("Shimla Hills", "delhi")
	if err != nil {
		t.Fatal(err)
	}
	if loc.Name != "Shimla Hills" || loc.Lat != 28.7041 || loc.Timezone != "Asia/Kolkata" {
		t.Errorf("unknown city should keep the name with Delhi coordinates, got %+v", loc)
	}

	if _, err := City("x", "delhi"); err == nil {
		t.Error("single letter city should be rejected")
	}
}
