package segment

// Encoding names a column value encoding inside a segment file.
type Encoding string

const (
	EncPlain Encoding = "plain"
	EncDict  Encoding = "dict"
)

// Compression names a per-column chunk compression codec.
type Compression string

const (
	CompNone Compression = "none"
	CompZstd Compression = "zstd"
	CompLZ4  Compression = "lz4"
)

// ColumnOptions overrides the writer defaults for a single column.
type ColumnOptions struct {
	EnableDict        *bool        `json:"enable_dict,omitempty"`
	EnableBloomFilter *bool        `json:"enable_bloom_filter,omitempty"`
	Encoding          *Encoding    `json:"encoding,omitempty"`
	Compression       *Compression `json:"compression,omitempty"`
}

// WriteOptions configures the segment writer.
type WriteOptions struct {
	MaxRowGroupSize      int                      `json:"max_row_group_size"`
	WriteBatchSize       int                      `json:"write_batch_size"`
	EnableSortingColumns bool                     `json:"enable_sorting_columns"`
	EnableDict           bool                     `json:"enable_dict"`
	EnableBloomFilter    bool                     `json:"enable_bloom_filter"`
	Encoding             Encoding                 `json:"encoding"`
	Compression          Compression              `json:"compression"`
	ColumnOptions        map[string]ColumnOptions `json:"column_options,omitempty"`
}

// DefaultWriteOptions returns the stock writer configuration: 8K-row row
// groups, 1K-row encode batches, sorting columns on, dictionary and bloom
// filters off, plain encoding, zstd compression.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		MaxRowGroupSize:      8192,
		WriteBatchSize:       1024,
		EnableSortingColumns: true,
		EnableDict:           false,
		EnableBloomFilter:    false,
		Encoding:             EncPlain,
		Compression:          CompZstd,
	}
}

// Sanitize fills zero values with defaults so a partially populated
// options struct (e.g. loaded from a config file) behaves predictably.
func (o *WriteOptions) Sanitize() {
	def := DefaultWriteOptions()
	if o.MaxRowGroupSize <= 0 {
		o.MaxRowGroupSize = def.MaxRowGroupSize
	}
	if o.WriteBatchSize <= 0 {
		o.WriteBatchSize = def.WriteBatchSize
	}
	if o.Encoding == "" {
		o.Encoding = def.Encoding
	}
	if o.Compression == "" {
		o.Compression = def.Compression
	}
}

// colEncoding resolves the effective encoding for the named column.
func (o *WriteOptions) colEncoding(name string) Encoding {
	enc := o.Encoding
	dict := o.EnableDict
	if co, ok := o.ColumnOptions[name]; ok {
		if co.Encoding != nil {
			enc = *co.Encoding
		}
		if co.EnableDict != nil {
			dict = *co.EnableDict
		}
	}
	if dict {
		return EncDict
	}
	return enc
}

// colCompression resolves the effective compression for the named column.
func (o *WriteOptions) colCompression(name string) Compression {
	comp := o.Compression
	if co, ok := o.ColumnOptions[name]; ok && co.Compression != nil {
		comp = *co.Compression
	}
	return comp
}

// colBloom resolves whether the named column gets a bloom filter.
func (o *WriteOptions) colBloom(name string) bool {
	bloom := o.EnableBloomFilter
	if co, ok := o.ColumnOptions[name]; ok && co.EnableBloomFilter != nil {
		bloom = *co.EnableBloomFilter
	}
	return bloom
}
