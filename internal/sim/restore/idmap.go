package restore

// IDMap tracks original-identifier to new-identifier mappings per collection
// during one launch. It is created inside Launch, discarded with it, and
// never shared across invocations.
type IDMap map[string]map[string]string

func NewIDMap() IDMap {
	return make(IDMap)
}

func (m IDMap) Put(collection, originalID, newID string) {
	if originalID == "" {
		return
	}
	byID, ok := m[collection]
	if !ok {
		byID = make(map[string]string)
		m[collection] = byID
	}
	byID[originalID] = newID
}

func (m IDMap) Resolve(collection, originalID string) (string, bool) {
	newID, ok := m[collection][originalID]
	return newID, ok
}

// Mappings returns the number of recorded mappings for a collection.
func (m IDMap) Mappings(collection string) int {
	return len(m[collection])
}
