package config

// Sample returns the YAML text written by `deidgo init`: a minimal
// but complete single-table config exercising an ID and a DateTime
// transformer over a filesystem store.
func Sample() string {
	return `name: sample_deidentification
deid_config:
  time_shift:
    method: shift_by_weeks
    min_range: 1
    max_range: 30
io:
  data:
    input_config:
      io_type: filesystem
      base_path: ./data/input
      file_format: csv
    output_config:
      io_type: filesystem
      base_path: ./data/output
      file_format: csv
  reference:
    config:
      io_type: filesystem
      base_path: ./data/refs
tables:
  patients:
    transformers:
      - uid: patient_id
        method: id
        column: patient_id
        identifier: patient_uid
        cast: integer
      - uid: visited_at
        method: datetime
        datetime_column: visited_at
        idconfig:
          name: patient_id
          uid: patient_uid
        depends_on: [patient_id]
        time_shift:
          method: shift_by_weeks
          min_range: 1
          max_range: 30
`
}
