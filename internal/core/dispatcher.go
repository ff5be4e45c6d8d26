package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"opsreport/pkg/domain"
)

const departmentField = "department_id"

// CreateInput carries a record creation through the dispatcher. A
// department_id field in Data takes precedence over DepartmentID.
type CreateInput struct {
	DepartmentID *int64
	CreatedBy    *int64
	Data         json.RawMessage
}

// TableHandler performs typed mutations on one table inside a transaction.
type TableHandler struct {
	Create func(tx Transaction, in CreateInput) (Record, error)
	Update func(tx Transaction, id string, patch json.RawMessage) (Record, error)
	Delete func(tx Transaction, id string) error
	// Validate decodes payload against the table's record type without writing.
	Validate func(payload json.RawMessage, creating bool) error
}

// Dispatcher maps table names to their handlers.
type Dispatcher struct {
	handlers map[TableName]TableHandler
}

// NewDispatcher returns a dispatcher with no tables registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[TableName]TableHandler)}
}

// DefaultDispatcher registers every operational table with its record type.
func DefaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	RegisterTable[domain.OperationalReport](d, domain.TableOperationalReports)
	RegisterTable[domain.KTAKPIData](d, domain.TableKTAKPIData)
	RegisterTable[domain.CriticalIssue](d, domain.TableCriticalIssues)
	RegisterTable[domain.SafetyIncident](d, domain.TableSafetyIncidents)
	RegisterTable[domain.EnergyConsumption](d, domain.TableEnergyConsumption)
	RegisterTable[domain.Notification](d, domain.TableNotifications)
	RegisterTable[domain.Order](d, domain.TableOrders)
	RegisterTable[domain.MaintenanceRoutine](d, domain.TableMaintenanceRoutine)
	return d
}

// RegisterTable binds table to record type T. Payloads are decoded into T
// with unknown fields rejected; updates overlay the patch on the stored value.
func RegisterTable[T any](d *Dispatcher, table TableName) {
	d.handlers[table] = TableHandler{
		Create: func(tx Transaction, in CreateInput) (Record, error) {
			dept, fields, err := splitDepartment(in.Data)
			if err != nil {
				return Record{}, err
			}
			if dept == nil {
				dept = in.DepartmentID
			}
			if dept == nil {
				return Record{}, domain.Invalid(departmentField, "is required")
			}
			var value T
			if err := decodeStrict(fields, &value); err != nil {
				return Record{}, err
			}
			data, err := json.Marshal(value)
			if err != nil {
				return Record{}, fmt.Errorf("encode %s record: %w", table, err)
			}
			return tx.CreateRecord(Record{Table: table, DepartmentID: *dept, CreatedBy: in.CreatedBy, Data: data})
		},
		Update: func(tx Transaction, id string, patch json.RawMessage) (Record, error) {
			current, ok := tx.FindRecord(table, id)
			if !ok {
				return Record{}, domain.NotFoundError{Entity: domain.EntityType(table), ID: id}
			}
			var value T
			if len(current.Data) > 0 {
				if err := json.Unmarshal(current.Data, &value); err != nil {
					return Record{}, fmt.Errorf("decode stored %s record %s: %w", table, id, err)
				}
			}
			if err := decodeStrict(patch, &value); err != nil {
				return Record{}, err
			}
			data, err := json.Marshal(value)
			if err != nil {
				return Record{}, fmt.Errorf("encode %s record: %w", table, err)
			}
			return tx.UpdateRecord(table, id, func(r *Record) error {
				r.Data = data
				return nil
			})
		},
		Delete: func(tx Transaction, id string) error {
			return tx.DeleteRecord(table, id)
		},
		Validate: func(payload json.RawMessage, creating bool) error {
			if creating {
				_, fields, err := splitDepartment(payload)
				if err != nil {
					return err
				}
				payload = fields
			}
			var value T
			return decodeStrict(payload, &value)
		},
	}
}

// Handler returns the handler for table or an UnsupportedTableError.
func (d *Dispatcher) Handler(table TableName) (TableHandler, error) {
	h, ok := d.handlers[table]
	if !ok {
		return TableHandler{}, domain.UnsupportedTableError{Table: table}
	}
	return h, nil
}

// Supports reports whether table has a registered handler.
func (d *Dispatcher) Supports(table TableName) bool {
	_, ok := d.handlers[table]
	return ok
}

// Tables lists the registered tables in name order.
func (d *Dispatcher) Tables() []TableName {
	out := make([]TableName, 0, len(d.handlers))
	for table := range d.handlers {
		out = append(out, table)
	}
	slices.Sort(out)
	return out
}

func decodeStrict(payload json.RawMessage, into any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Invalid("newData", "must be a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return domain.Invalid("newData", err.Error())
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.Invalid("newData", "unexpected data after JSON object")
	}
	return nil
}

// splitDepartment extracts the department_id field that creation payloads
// may carry alongside the record fields.
func splitDepartment(payload json.RawMessage) (*int64, json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, nil, domain.Invalid("newData", "must be a JSON object")
	}
	raw, ok := fields[departmentField]
	if !ok {
		return nil, payload, nil
	}
	delete(fields, departmentField)
	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, rest, nil
	}
	var dept int64
	if err := json.Unmarshal(raw, &dept); err != nil {
		return nil, nil, domain.Invalid(departmentField, "must be an integer")
	}
	return &dept, rest, nil
}
