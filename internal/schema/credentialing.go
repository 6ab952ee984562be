package schema

// Entity names of the built-in credentialing schemas.
const (
	Providers           = "Providers"
	Facilities          = "Facilities"
	FacilitySpecialties = "FacilitySpecialties"
	Licenses            = "Licenses"
	Requests            = "Requests"
	RequestEvents       = "RequestEvents"
	Users               = "Users"
	AuditLog            = "AuditLog"
)

var standardStamps = Stamps{
	CreatedAt: "Created At",
	CreatedBy: "Created By",
	UpdatedAt: "Updated At",
	UpdatedBy: "Updated By",
}

// Credentialing returns the built-in schemas for the credentialing workflow.
func Credentialing() []Entity {
	return []Entity{
		{
			Name:  Providers,
			Table: "Providers",
			Columns: []string{
				"ID", "First Name", "Last Name", "NPI", "Email", "Phone",
				"Specialty", "Status", "Notes",
				"Created At", "Created By", "Updated At", "Updated By",
			},
			PrimaryKey: "ID",
			Children: []ChildRelation{
				{Key: "licenses", ChildEntity: Licenses, ParentColumn: "Provider ID"},
				{Key: "requests", ChildEntity: Requests, ParentColumn: "Provider ID"},
			},
			Stamps: standardStamps,
		},
		{
			Name:  Facilities,
			Table: "Facilities",
			Columns: []string{
				"ID", "Name", "Address", "City", "State", "Zip", "Phone", "Status",
				"Created At", "Created By", "Updated At", "Updated By",
			},
			PrimaryKey: "ID",
			Children: []ChildRelation{
				{Key: "specialties", ChildEntity: FacilitySpecialties, ParentColumn: "Facility ID"},
				{Key: "requests", ChildEntity: Requests, ParentColumn: "Facility ID"},
			},
			Stamps: standardStamps,
		},
		{
			Name:       FacilitySpecialties,
			Table:      "Facility Specialties",
			Columns:    []string{"ID", "Facility ID", "Taxonomy ID"},
			PrimaryKey: "ID",
		},
		{
			Name:  Licenses,
			Table: "Licenses",
			Columns: []string{
				"ID", "Provider ID", "License Number", "State", "License Type",
				"Issue Date", "Expiration Date", "Status",
				"Created At", "Created By", "Updated At", "Updated By",
			},
			PrimaryKey: "ID",
			Stamps:     standardStamps,
		},
		{
			Name:  Requests,
			Table: "Requests",
			Columns: []string{
				"ID", "Provider ID", "Facility ID", "Request Type", "Status",
				"Priority", "Owner Email", "Due Date", "Details (JSON)",
				"Created At", "Created By", "Updated At", "Updated By",
			},
			PrimaryKey: "ID",
			Children: []ChildRelation{
				{Key: "events", ChildEntity: RequestEvents, ParentColumn: "Request ID"},
			},
			Stamps: standardStamps,
		},
		{
			Name:       RequestEvents,
			Table:      "Request Events",
			Columns:    []string{"ID", "Request ID", "Event Type", "Message", "Created At", "Created By"},
			PrimaryKey: "ID",
			Stamps:     Stamps{CreatedAt: "Created At", CreatedBy: "Created By"},
		},
		{
			Name:       Users,
			Table:      "Users",
			Columns:    []string{"ID", "Email", "Name", "Role", "Active"},
			PrimaryKey: "ID",
		},
		{
			Name:       AuditLog,
			Table:      "Audit Log",
			Columns:    []string{"ID", "Timestamp", "Kind", "Actor", "Message", "Context (JSON)"},
			PrimaryKey: "ID",
		},
	}
}

// Default returns a registry over the built-in credentialing schemas.
func Default() *Registry {
	return MustRegistry(Credentialing()...)
}
