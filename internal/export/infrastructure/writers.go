package infrastructure

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"etlfactures/internal/export/domain"
)

// nombre de goroutines d'écriture parquet
const parquetParallelism = 4

// WriteProductsParquet écrit les lignes dans un fichier Parquet compressé SNAPPY
func WriteProductsParquet(path string, rows []domain.ProductRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(domain.ProductRow), parquetParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 8 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			fw.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return fw.Close()
}

// WriteProductsCSV écrit les lignes en CSV, flush tous les batchSize enregistrements
func WriteProductsCSV(w io.Writer, rows []domain.ProductRow, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.CSVHeaders()); err != nil {
		return err
	}
	for i, row := range rows {
		if err := cw.Write(row.ToCSVRow()); err != nil {
			return err
		}
		if (i+1)%batchSize == 0 {
			cw.Flush()
		}
	}
	cw.Flush()
	return cw.Error()
}
