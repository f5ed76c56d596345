package entity

import "testing"

func TestUserFromResponse(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
		want User
	}{
		{
			name: "flat response",
			resp: map[string]any{
				"userId":   "u-1",
				"userTel":  "13800000000",
				"token":    "tok",
				"realName": "Zhang San",
			},
			want: User{UserID: "u-1", Telephone: "13800000000", Token: "tok", RealName: "Zhang San"},
		},
		{
			name: "nested under o",
			resp: map[string]any{
				"o": map[string]any{
					"userId":   "u-2",
					"userTel":  "13900000000",
					"token":    "tok2",
					"realName": "Li Si",
				},
			},
			want: User{UserID: "u-2", Telephone: "13900000000", Token: "tok2", RealName: "Li Si"},
		},
		{
			name: "flat wins over nested",
			resp: map[string]any{
				"userId": "flat-id",
				"o": map[string]any{
					"userId": "nested-id",
					"token":  "nested-tok",
				},
			},
			want: User{UserID: "flat-id", Token: "nested-tok"},
		},
		{
			name: "non-string values ignored",
			resp: map[string]any{
				"userId": 42,
				"token":  true,
			},
			want: User{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserFromResponse(tt.resp); got != tt.want {
				t.Errorf("UserFromResponse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUserJSONRoundTrip(t *testing.T) {
	user := User{UserID: "u-1", Telephone: "138", Token: "tok", RealName: "name"}

	data, err := user.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	got, err := UserFromJSON(data)
	if err != nil {
		t.Fatalf("UserFromJSON() error = %v", err)
	}
	if got != user {
		t.Errorf("round trip = %+v, want %+v", got, user)
	}
}

func TestSchoolFromRecord(t *testing.T) {
	rec := map[string]any{
		"schoolNo": "1001",
		"token":    "school-tok",
		"school": map[string]any{
			"schoolName": "Example University",
			"serverUrl":  "https://tenant.example.com",
		},
	}

	got := SchoolFromRecord(rec)
	want := School{
		SchoolNo:   "1001",
		SchoolName: "Example University",
		ServerURL:  "https://tenant.example.com",
		Token:      "school-tok",
	}
	if got != want {
		t.Errorf("SchoolFromRecord() = %+v, want %+v", got, want)
	}
}

func TestSchoolFromRecordMissingNested(t *testing.T) {
	got := SchoolFromRecord(map[string]any{"schoolNo": "1001"})
	if got.SchoolNo != "1001" || got.SchoolName != "" || got.ServerURL != "" {
		t.Errorf("SchoolFromRecord() = %+v, want only schoolNo set", got)
	}
}
