// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/weighbridge/internal/billing/ratebook"
)

// maxRateSheetSize caps the size of an uploaded rate spreadsheet.
const maxRateSheetSize = 10 << 20 // 10 MiB

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PostRates implements the POST /rates endpoint: it replaces the entire
// rate table with the contents of the uploaded spreadsheet. The sheet can
// be sent either as a multipart form field named "file" or as the raw
// request body.
func (p *v1API) PostRates(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/rates")

	sheet, err := sheetFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer sheet.Close()

	rates, err := ratebook.ParseSheet(sheet)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = ratebook.ReplaceAll(p.DB, rates)
	if respondwith.ErrorText(w, err) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("loaded %d rates", len(rates)),
	})
}

func sheetFromRequest(r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRateSheetSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	err := r.ParseMultipartForm(maxRateSheetSize)
	if err != nil {
		return nil, fmt.Errorf("cannot parse multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf(`multipart form has no "file" field`)
	}
	return file, nil
}

// GetRates implements the GET /rates endpoint. The format query parameter
// selects between a JSON listing (the default) and a spreadsheet download.
func (p *v1API) GetRates(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/rates")

	rates, err := ratebook.ListAll(p.DB)
	if respondwith.ErrorText(w, err) {
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		respondwith.JSON(w, http.StatusOK, rates)
	case "excel":
		w.Header().Set("Content-Type", excelContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="rates.xlsx"`)
		err := ratebook.RenderSheet(w, rates)
		if err != nil {
			// the response is already underway, so all we can do is log
			logg.Error("while rendering rate sheet: %s", err.Error())
		}
	default:
		http.Error(w, fmt.Sprintf("invalid format %q: expected \"json\" or \"excel\"", format), http.StatusBadRequest)
	}
}
