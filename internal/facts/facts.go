package facts

type Slot string

const (
	SlotAddress            Slot = "propertyAddress"
	SlotUnit               Slot = "unitNumber"
	SlotReportedIssue      Slot = "reportedIssue"
	SlotContactName        Slot = "contactName"
	SlotCallbackNumber     Slot = "callbackNumber"
	SlotAccessInstructions Slot = "accessInstructions"
	SlotPriority           Slot = "priority"
)

type Priority string

const (
	PriorityStandard  Priority = "STANDARD"
	PriorityUrgent    Priority = "URGENT"
	PriorityEmergency Priority = "EMERGENCY"
)

func (p Priority) rank() int {
	switch p {
	case PriorityEmergency:
		return 2
	case PriorityUrgent:
		return 1
	default:
		return 0
	}
}

// Facts holds what the caller has already told us. A filled slot is never
// overwritten by extraction, Priority included; only Clear empties one.
type Facts struct {
	Address            string
	Unit               string
	ReportedIssue      string
	ContactName        string
	CallbackNumber     string
	AccessInstructions string
	Priority           Priority
}

func (f Facts) Value(slot Slot) string {
	switch slot {
	case SlotAddress:
		return f.Address
	case SlotUnit:
		return f.Unit
	case SlotReportedIssue:
		return f.ReportedIssue
	case SlotContactName:
		return f.ContactName
	case SlotCallbackNumber:
		return f.CallbackNumber
	case SlotAccessInstructions:
		return f.AccessInstructions
	case SlotPriority:
		return string(f.Priority)
	}
	return ""
}

func (f *Facts) set(slot Slot, value string) {
	switch slot {
	case SlotAddress:
		f.Address = value
	case SlotUnit:
		f.Unit = value
	case SlotReportedIssue:
		f.ReportedIssue = value
	case SlotContactName:
		f.ContactName = value
	case SlotCallbackNumber:
		f.CallbackNumber = value
	case SlotAccessInstructions:
		f.AccessInstructions = value
	case SlotPriority:
		f.Priority = Priority(value)
	}
}

// merge applies one extracted value and reports whether anything changed.
func (f *Facts) merge(slot Slot, value string) bool {
	if value == "" || f.Value(slot) != "" {
		return false
	}
	f.set(slot, value)
	return true
}

// higher returns whichever of p and other is more severe.
func (p Priority) higher(other Priority) Priority {
	if other.rank() > p.rank() {
		return other
	}
	return p
}

// Map returns the filled slots as a flat name to value map.
func (f Facts) Map() map[string]string {
	out := make(map[string]string, 7)
	for _, slot := range []Slot{SlotAddress, SlotUnit, SlotReportedIssue, SlotContactName, SlotCallbackNumber, SlotAccessInstructions, SlotPriority} {
		if v := f.Value(slot); v != "" {
			out[string(slot)] = v
		}
	}
	return out
}

func (f Facts) Empty() bool {
	return f.Address == "" && f.Unit == "" && f.ReportedIssue == "" && f.ContactName == "" &&
		f.CallbackNumber == "" && f.AccessInstructions == ""
}
