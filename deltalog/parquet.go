package deltalog

import (
	"fmt"
	"reflect"

	"github.com/lsjoeberg/deltactl/objstore"
	"github.com/xitongsys/parquet-go/reader"
)

// ReadParquetRows decodes an in-memory parquet file into one map per row,
// keyed by the original column names. Nil (missing) values are omitted.
func ReadParquetRows(data []byte) ([]map[string]any, error) {
	fr := objstore.NewBytesFile(data)
	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("error in NewParquetReader: %w", err)
	}
	defer pr.ReadStop()

	rows, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return nil, fmt.Errorf("error in ReadByNumber: %w", err)
	}

	// The reader returns generated structs with go-ified field names, map
	// them back to the names stored in the file footer
	exNames := make(map[string]string)
	for _, info := range pr.SchemaHandler.Infos {
		exNames[info.InName] = info.ExName
	}

	var rowMaps []map[string]any
	for _, row := range rows {
		v := reflect.ValueOf(row)
		typeOf := v.Type()
		rowMap := make(map[string]any)
		for i := 0; i < v.NumField(); i++ {
			name := typeOf.Field(i).Name
			if ex, ok := exNames[name]; ok {
				name = ex
			}
			fv := v.Field(i)
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			rowMap[name] = fv.Interface()
		}
		rowMaps = append(rowMaps, rowMap)
	}
	return rowMaps, nil
}
