package entity

// School describes one tenant deployment of the vendor API.
//
// Token is a second, tenant-scoped credential distinct from the User
// token; calls to ServerURL must present it. The school list endpoint
// refreshes tokens, so School values are replaced wholesale on every
// discovery rather than updated in place.
type School struct {
	SchoolNo   string `json:"schoolNo"`
	SchoolName string `json:"schoolName"`
	ServerURL  string `json:"serverUrl"`
	Token      string `json:"token"`
}

// SchoolFromRecord flattens one raw school-list record.
//
// The wire shape nests the display fields under a "school" object:
//
//	{ schoolNo, school: { schoolName, serverUrl }, token }
func SchoolFromRecord(rec map[string]any) School {
	nested, _ := rec["school"].(map[string]any)
	return School{
		SchoolNo:   stringField(rec, nil, "schoolNo"),
		SchoolName: stringField(nil, nested, "schoolName"),
		ServerURL:  stringField(nil, nested, "serverUrl"),
		Token:      stringField(rec, nil, "token"),
	}
}
