package storage

import "testing"

func TestAppointmentLimit(t *testing.T) {
	cases := []struct {
		name   string
		stored int
		want   int
	}{
		{"stored cap wins", 500, 500},
		{"zero falls back", 0, 200},
		{"negative falls back", -1, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ent := ProviderEntitlements{MaxMonthlyAppointments: tc.stored}
			if got := ent.AppointmentLimit(200); got != tc.want {
				t.Fatalf("AppointmentLimit = %d, want %d", got, tc.want)
			}
		})
	}
}
