package budget

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Survey of Governments fixed-width layout: the government ID occupies the
// first 12 characters, with the unit-type digit at index 2.
const (
	govIDWidth    = 12
	nameEnd       = 76
	itemCodeEnd   = 15
	amountTrailer = 5 // trailing survey metadata after the amount column
)

// totalExpenditureCode is the survey item code for total expenditure.
const totalExpenditureCode = "49U"

// censusStateAbbrev maps Census state codes to postal abbreviations.
var censusStateAbbrev = map[string]string{
	"01": "AL", "02": "AK", "04": "AZ", "05": "AR", "06": "CA",
	"08": "CO", "09": "CT", "10": "DE", "11": "DC", "12": "FL",
	"13": "GA", "15": "HI", "16": "ID", "17": "IL", "18": "IN",
	"19": "IA", "20": "KS", "21": "KY", "22": "LA", "23": "ME",
	"24": "MD", "25": "MA", "26": "MI", "27": "MN", "28": "MS",
	"29": "MO", "30": "MT", "31": "NE", "32": "NV", "33": "NH",
	"34": "NJ", "35": "NM", "36": "NY", "37": "NC", "38": "ND",
	"39": "OH", "40": "OK", "41": "OR", "42": "PA", "44": "RI",
	"45": "SC", "46": "SD", "47": "TN", "48": "TX", "49": "UT",
	"50": "VT", "51": "VA", "53": "WA", "54": "WV", "55": "WI",
	"56": "WY",
}

// ImportStats summarizes one registry import.
type ImportStats struct {
	UnitsScanned    int
	BudgetsMatched  int
	RowsAppended    int
	AlreadyPresent  int
}

// ImportRegistry ingests the Survey of Governments PID and finance release
// files, appending total-expenditure rows for counties, municipalities, and
// townships that the registry does not already carry. The registry file is
// created with its header when missing.
func ImportRegistry(pidPath, financePath, registryPath string) (ImportStats, error) {
	var stats ImportStats

	existing, err := existingGovIDs(registryPath)
	if err != nil {
		return stats, err
	}

	names, err := scanPIDNames(pidPath)
	if err != nil {
		return stats, err
	}
	stats.UnitsScanned = len(names)

	rows, matched, skipped, err := scanFinanceRows(financePath, names, existing)
	if err != nil {
		return stats, err
	}
	stats.BudgetsMatched = matched
	stats.AlreadyPresent = skipped

	if len(rows) == 0 {
		return stats, nil
	}

	appended, err := appendRegistryRows(registryPath, rows)
	if err != nil {
		return stats, err
	}
	stats.RowsAppended = appended
	return stats, nil
}

// scanPIDNames collects government unit names for counties (type 1),
// municipalities (type 2), and townships (type 3).
func scanPIDNames(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	names := make(map[string]string)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) < govIDWidth {
			continue
		}
		gid := latin1(line[:govIDWidth])
		switch gid[2] {
		case '1', '2', '3':
		default:
			continue
		}
		end := nameEnd
		if end > len(line) {
			end = len(line)
		}
		name := strings.TrimSpace(latin1(line[govIDWidth:end]))
		if name == "" {
			continue
		}
		names[gid] = name
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan pid file: %w", err)
	}
	return names, nil
}

// scanFinanceRows extracts total-expenditure amounts for known units that are
// not yet in the registry. Amounts are reported in thousands of dollars.
func scanFinanceRows(path string, names map[string]string, existing map[string]struct{}) (rows [][]string, matched, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open finance file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(latin1(sc.Bytes()))
		if len(line) < itemCodeEnd+amountTrailer {
			continue
		}
		gid := line[:govIDWidth]
		if line[govIDWidth:itemCodeEnd] != totalExpenditureCode {
			continue
		}
		name, ok := names[gid]
		if !ok {
			continue
		}
		matched++
		if _, ok := existing[gid]; ok {
			skipped++
			continue
		}
		if _, ok := seen[gid]; ok {
			continue
		}

		rest := line[itemCodeEnd:]
		amountStr := strings.TrimSpace(rest[:len(rest)-amountTrailer])
		amount, err := strconv.ParseInt(amountStr, 10, 64)
		if err != nil || amount <= 0 {
			continue
		}

		stateCode := gid[:2]
		abbrev, ok := censusStateAbbrev[stateCode]
		if !ok {
			abbrev = "XX"
		}
		seen[gid] = struct{}{}
		rows = append(rows, []string{
			gid, name, abbrev, stateCode,
			strconv.FormatInt(amount*1000, 10), "", "", "", "",
		})
	}
	if err := sc.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("scan finance file: %w", err)
	}
	return rows, matched, skipped, nil
}

func existingGovIDs(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return ids, nil // empty or unreadable registry: treat as no IDs
	}
	idCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "GOV_ID" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return ids, nil
	}
	for {
		rec, err := cr.Read()
		if err != nil {
			break
		}
		if idCol < len(rec) && rec[idCol] != "" {
			ids[rec[idCol]] = struct{}{}
		}
	}
	return ids, nil
}

func appendRegistryRows(path string, rows [][]string) (int, error) {
	writeHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open registry for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(registryHeader); err != nil {
			return 0, fmt.Errorf("write registry header: %w", err)
		}
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write registry row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write registry: %w", err)
	}
	return len(rows), nil
}

// latin1 decodes ISO 8859-1 bytes, where every byte maps to the same Unicode
// code point.
func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
