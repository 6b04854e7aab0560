package media

import (
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "08:00", want: TimeOfDay{8, 0}},
		{in: "00:00", want: TimeOfDay{0, 0}},
		{in: "23:59", want: TimeOfDay{23, 59}},
		{in: " 12:30 ", want: TimeOfDay{12, 30}},
		{in: "25:00", wantErr: true},
		{in: "24:00", wantErr: true},
		{in: "9:30", wantErr: true},
		{in: "09:5", wantErr: true},
		{in: "08:60", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "08:00:00", wantErr: true},
		{in: "-1:00", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			if got.String() != trim(tc.in) {
				t.Fatalf("String()=%q want %q", got.String(), trim(tc.in))
			}
		})
	}
}

func trim(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func TestParseType(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"sticker", "GIF", " photo", "video"} {
		if _, err := ParseType(in); err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
	}
	for _, in := range []string{"", "audio", "document"} {
		if _, err := ParseType(in); err == nil {
			t.Fatalf("ParseType(%q) should fail", in)
		}
	}
}

func TestJobIDs(t *testing.T) {
	t.Parallel()

	if got := SendJobID("abc123"); got != "send_sch_abc123" {
		t.Fatalf("SendJobID=%q", got)
	}
	if id, ok := ItemIDFromJob("send_sch_abc123"); !ok || id != "abc123" {
		t.Fatalf("ItemIDFromJob=%q,%v", id, ok)
	}
	if _, ok := ItemIDFromJob("send_sch_"); ok {
		t.Fatalf("empty suffix should not parse")
	}
	if _, ok := ItemIDFromJob("delete_msg_1_2_3"); ok {
		t.Fatalf("delete id should not parse as send id")
	}

	at := time.Unix(1700000000, 5)
	a := DeleteJobID(-100, 7, at)
	b := DeleteJobID(-100, 7, at.Add(time.Nanosecond))
	if a == b {
		t.Fatalf("deletion ids must differ by submission time")
	}
	if a != "delete_msg_-100_7_1700000000000000005" {
		t.Fatalf("DeleteJobID=%q", a)
	}
}
