package bill

// Merge pairs fresh canonical data with the existing record's annotations,
// upgrading the annotation schema in place of a wholesale replace.
func (s Schema) Merge(existing Record, data CongressGovData) Record {
	custom, _ := s.Ensure(existing.CustomData)
	return Record{
		CongressGovData: data,
		CustomData:      custom,
		Extra:           existing.Extra,
	}
}

// NewRecord creates a record with default annotations for an unseen key.
func (s Schema) NewRecord(data CongressGovData) Record {
	return Record{
		CongressGovData: data,
		CustomData:      s.Defaults(),
	}
}

// Upsert merges data into ds under its bill id and reports whether the key was new.
func (s Schema) Upsert(ds Dataset, data CongressGovData) (created bool) {
	existing, ok := ds[data.BillID]
	if ok {
		ds[data.BillID] = s.Merge(existing, data)
		return false
	}
	ds[data.BillID] = s.NewRecord(data)
	return true
}
