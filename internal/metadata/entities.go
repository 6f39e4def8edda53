package metadata

import "github.com/noah-isme/fieldops-api/internal/models"

// Entities returns the declarative metadata records for every queryable
// business entity. Adding a new entity to the API means adding a record here;
// the query path needs no new code.
func Entities() []*EntityMetadata {
	return []*EntityMetadata{
		{
			Name:          "customer",
			TableName:     "customers",
			PrimaryKey:    "id",
			IdentityField: "full_name",
			Fields: []string{
				"id", "user_id", "full_name", "email", "phone", "address", "city",
				"internal_notes", "internal_rating", "active", "created_at", "updated_at",
			},
			WritableFields: []string{
				"full_name", "email", "phone", "address", "city",
				"internal_notes", "internal_rating", "active",
			},
			SearchableFields: []string{"full_name", "email", "phone", "city"},
			FilterableFields: []string{"city", "active", "internal_rating", "created_at"},
			SortableFields:   []string{"full_name", "city", "created_at", "updated_at"},
			DefaultSort:      Sort{Field: "created_at", Order: "DESC"},
			ExcludedFields:   []string{"internal_notes"},
			RestrictedFields: []string{"internal_rating"},
			OwnerField:       "user_id",
			Relationships: map[string]Relationship{
				"work_orders": {
					Type:       HasMany,
					Table:      "work_orders",
					ForeignKey: "customer_id",
					Fields:     []string{"id", "title", "status", "priority", "scheduled_at"},
				},
			},
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):      PolicyAllRecords,
				string(models.RoleManager):    PolicyAllRecords,
				string(models.RoleDispatcher): PolicyAllRecords,
				string(models.RoleTechnician): PolicyAllRecords,
				string(models.RoleCustomer):   PolicyOwnRecordOnly,
			},
		},
		{
			Name:          "technician",
			TableName:     "technicians",
			PrimaryKey:    "id",
			IdentityField: "full_name",
			Fields: []string{
				"id", "user_id", "employee_no", "full_name", "email", "phone",
				"skills", "hourly_cost", "active", "created_at", "updated_at",
			},
			WritableFields: []string{
				"employee_no", "full_name", "email", "phone", "skills",
				"hourly_cost", "active",
			},
			SearchableFields: []string{"full_name", "email", "employee_no", "skills"},
			FilterableFields: []string{"active", "skills", "hourly_cost", "created_at"},
			SortableFields:   []string{"full_name", "employee_no", "created_at"},
			DefaultSort:      Sort{Field: "full_name", Order: "ASC"},
			RestrictedFields: []string{"hourly_cost"},
			OwnerField:       "user_id",
			Relationships: map[string]Relationship{
				"work_orders": {
					Type:       HasMany,
					Table:      "work_orders",
					ForeignKey: "technician_id",
					Fields:     []string{"id", "title", "status", "priority", "scheduled_at"},
				},
			},
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):      PolicyAllRecords,
				string(models.RoleManager):    PolicyAllRecords,
				string(models.RoleDispatcher): PolicyAllRecords,
				string(models.RoleTechnician): PolicyOwnRecordOnly,
			},
		},
		{
			Name:          "work_order",
			TableName:     "work_orders",
			PrimaryKey:    "id",
			IdentityField: "title",
			Fields: []string{
				"id", "customer_id", "technician_id", "title", "description",
				"status", "priority", "scheduled_at", "completed_at",
				"total_amount", "created_at", "updated_at",
			},
			WritableFields: []string{
				"customer_id", "technician_id", "title", "description",
				"status", "priority", "scheduled_at", "completed_at", "total_amount",
			},
			SearchableFields: []string{"title", "description"},
			FilterableFields: []string{
				"status", "priority", "customer_id", "technician_id",
				"scheduled_at", "created_at",
			},
			SortableFields: []string{"scheduled_at", "priority", "status", "created_at"},
			DefaultSort:    Sort{Field: "scheduled_at", Order: "DESC"},
			OwnerField:     "customer_id",
			Relationships: map[string]Relationship{
				"invoices": {
					Type:       HasMany,
					Table:      "invoices",
					ForeignKey: "work_order_id",
					Fields:     []string{"id", "invoice_number", "status", "total", "due_date"},
				},
				"appointments": {
					Type:       HasMany,
					Table:      "appointments",
					ForeignKey: "work_order_id",
					Fields:     []string{"id", "window_start", "window_end", "status"},
				},
			},
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):      PolicyAllRecords,
				string(models.RoleManager):    PolicyAllRecords,
				string(models.RoleDispatcher): PolicyAllRecords,
				string(models.RoleTechnician): PolicyAllRecords,
				string(models.RoleCustomer):   PolicyOwnRecordOnly,
			},
		},
		{
			Name:          "invoice",
			TableName:     "invoices",
			PrimaryKey:    "id",
			IdentityField: "invoice_number",
			Fields: []string{
				"id", "work_order_id", "customer_id", "invoice_number", "status",
				"amount", "tax", "total", "issued_at", "due_date", "paid_at",
				"created_at", "updated_at",
			},
			WritableFields: []string{
				"work_order_id", "customer_id", "invoice_number", "status",
				"amount", "tax", "total", "issued_at", "due_date", "paid_at",
			},
			SearchableFields: []string{"invoice_number"},
			FilterableFields: []string{
				"status", "customer_id", "work_order_id", "total",
				"issued_at", "due_date",
			},
			SortableFields: []string{"issued_at", "due_date", "total", "created_at"},
			DefaultSort:    Sort{Field: "issued_at", Order: "DESC"},
			OwnerField:     "customer_id",
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):    PolicyAllRecords,
				string(models.RoleManager):  PolicyAllRecords,
				string(models.RoleCustomer): PolicyOwnRecordOnly,
			},
		},
		{
			Name:          "appointment",
			TableName:     "appointments",
			PrimaryKey:    "id",
			IdentityField: "id",
			Fields: []string{
				"id", "work_order_id", "customer_id", "technician_id",
				"window_start", "window_end", "status", "notes",
				"created_at", "updated_at",
			},
			WritableFields: []string{
				"work_order_id", "customer_id", "technician_id",
				"window_start", "window_end", "status", "notes",
			},
			SearchableFields: []string{"notes"},
			FilterableFields: []string{
				"status", "customer_id", "technician_id", "work_order_id",
				"window_start",
			},
			SortableFields: []string{"window_start", "status", "created_at"},
			DefaultSort:    Sort{Field: "window_start", Order: "ASC"},
			OwnerField:     "customer_id",
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):      PolicyAllRecords,
				string(models.RoleManager):    PolicyAllRecords,
				string(models.RoleDispatcher): PolicyAllRecords,
				string(models.RoleTechnician): PolicyAllRecords,
				string(models.RoleCustomer):   PolicyOwnRecordOnly,
			},
		},
		{
			Name:          "user",
			TableName:     "users",
			PrimaryKey:    "id",
			IdentityField: "email",
			Fields: []string{
				"id", "email", "password_hash", "full_name", "role", "provider",
				"active", "last_login", "created_at", "updated_at",
			},
			WritableFields:   []string{"email", "full_name", "role", "active"},
			SearchableFields: []string{"email", "full_name"},
			FilterableFields: []string{"role", "active", "provider", "created_at"},
			SortableFields:   []string{"email", "full_name", "created_at", "last_login"},
			DefaultSort:      Sort{Field: "created_at", Order: "DESC"},
			ExcludedFields:   []string{"password_hash"},
			RestrictedFields: []string{"role", "active"},
			OwnerField:       "id",
			RLSPolicy: map[string]PolicyKind{
				string(models.RoleAdmin):      PolicyAllRecords,
				string(models.RoleManager):    PolicyAllRecords,
				string(models.RoleTechnician): PolicyOwnRecordOnly,
				string(models.RoleCustomer):   PolicyOwnRecordOnly,
			},
		},
	}
}
