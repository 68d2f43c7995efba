package extractor

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	zlog "github.com/activecm/rcr/logger"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

var errTruncated = errors.New("log file is potentially truncated")
var errUnknownFileType = errors.New("failed to parse log file: unknown file type or malformed header")
var errMismatchedPathField = errors.New("TSV 'path' field does not match file pathname prefix")
var errTooManyLineErrors = errors.New("failed to parse log file: too many unparsable lines, file is potentially corrupted")

// zeekHeader stores vars in the header of the zeek log
type zeekHeader struct {
	separator             string
	setSeparator          string
	emptyField            string
	unsetField            string
	path                  string
	open                  time.Time
	fieldOrder            []string
	rawFields             string
	rawTypes              string
	isTSV                 bool
	isJSON                bool
	headerToStructMapping map[string]int
	fsPath                string // actual file system path of log
}

// ZeekDateTimeFmt is the common format for zeek header datetimes
const ZeekDateTimeFmt = "2006-01-02-15-04-05"

const ConnPrefix = "conn"

const lineErrorLimit = 25

// LoadConnRecords parses the conn log at the given path into memory. A file
// is read exactly once no matter how many destinations reference it; entries
// are streamed off the parser and accumulated here.
func LoadConnRecords(afs afero.Fs, path string) ([]Record, error) {
	entryChan := make(chan ConnEntry, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(entryChan)
		if err := parseFile(afs, path, entryChan); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	var records []Record
	for entry := range entryChan {
		records = append(records, entry)
	}

	if err := <-errChan; err != nil {
		return nil, err
	}

	return records, nil
}

// parseFile determines if the passed in path belongs to a tsv or json file, parses the file header
// and scans through each subsequent line, parsing/unmarshaling it into a conn entry and sending it
// on the passed in channel. Unparsable lines are skipped up to a per-file cap; hitting the cap
// abandons the file.
func parseFile(afs afero.Fs, path string, entryChan chan<- ConnEntry) error {
	logger := zlog.GetLogger()

	// throttle the per-line warns so one corrupt log cannot flood the console
	warnLimiter := rate.NewLimiter(5, 5)

	// open file for reading
	empty, err := afero.IsEmpty(afs, path)
	if err != nil {
		return fmt.Errorf("could not determine if file is empty: %w", err)
	}

	// skip file if it is empty and log a warning
	if empty {
		logger.Warn().Str("path", path).Msg("failed to parse log file: file is empty")
		return nil
	}

	file, err := afs.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file for parsing: %w", err)
	}
	defer file.Close()

	// set up a new scanner to read from file
	var scanner *bufio.Scanner
	if strings.HasSuffix(path, ".gz") {
		// create gzip reader if the file extension insinuates that the file is compressed
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("could not open compressed file: %w", err)
		}
		scanner = bufio.NewScanner(gzipReader)
		defer gzipReader.Close()
	} else {
		scanner = bufio.NewScanner(file)
	}

	// set a buffer for the scanner
	initialBufferSize := 64 * 1024 // 64KiB
	maxBufferSize := 1024 * 1024   // 1MiB
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxBufferSize)

	// declare new header object for parsing tsv headers
	var header zeekHeader
	header.headerToStructMapping = make(map[string]int)

	var typeArr []string

	var entry ConnEntry
	entry.Reset()

	// create line error counter which will allow us to stop scanning in lines from
	// a file that had more than a certain amount of errors
	lineErrorCounter := 0

	previousLineHadError := false

	// iterate over lines in file
	for scanner.Scan() {

		// skip empty lines
		if len(scanner.Bytes()) < 1 {
			continue
		}

		// if header type has not been set, attempt to determine log format
		if !header.isJSON && !header.isTSV {

			switch {

			// since this line is a comment (it starts with a #), try to parse header in tsv format
			case scanner.Bytes()[0] == '#':
				// there are multiple comment lines that make up the header, so we need to call this function
				// several times until the lines we scan are no longer comments in order to populate the header info
				typeArr, err = header.parseHeader(scanner.Text())

				// return since parsing of tsv header failed and file is not json
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("failed to parse log file: unable to parse TSV Zeek header")
					return fmt.Errorf("unable to parse TSV Zeek header: %w", err)
				}

			// since the line does not begin with a comment, attempt to check if it is json
			case scanner.Bytes()[0] == '{' && jsoniter.ConfigCompatibleWithStandardLibrary.Valid(scanner.Bytes()):
				header.isJSON = true

			// line is not JSON and is not a comment
			default:
				// check if tsv header was parsed successfully
				if header.separator != "" && len(header.fieldOrder) > 0 {

					// set the isTSV header field to true and map the names of the header fields to the struct
					header.isTSV = true

					// check & warn if path field doesn't match filename prefix
					header.fsPath = path
					if err := header.validatePathPrefix(); err != nil {
						logger.Error().Str("path", path).Err(err).Send()
					}

					// return since mapping of tsv header failed and file is not json
					if err := header.mapHeader(); err != nil {
						logger.Err(err).Str("path", path).Msg("failed to parse log file: could not detect valid TSV Zeek header, is file valid TSV or JSON?")
						return fmt.Errorf("could not map TSV Zeek header: %w", err)
					}

					// if no header fields were found, quit parsing this file
				} else {
					logger.Err(errUnknownFileType).Str("path", path).Send()
					return errUnknownFileType
				}
			}
		}

		// parse this line as JSON if we've determined this file is in JSON format
		if header.isJSON {
			previousLineHadError = false

			entry.Reset()

			// unmarshal line
			if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(scanner.Bytes(), &entry); err != nil {
				if warnLimiter.Allow() {
					logger.Warn().Err(err).Str("path", path).Bytes("record", scanner.Bytes()).Msg("failed to unmarshal line from JSON")
				}
				lineErrorCounter++
				previousLineHadError = true
				if lineErrorCounter > lineErrorLimit {
					logger.Warn().Str("path", path).Msg("log file is potentially corrupted")
					return errTooManyLineErrors
				}
				continue
			}

			// send parsed entry on its channel
			entryChan <- entry

			// parse this line as TSV if we've determined this file is in TSV format
		} else if header.isTSV {
			previousLineHadError = false

			// don't parse this line if it is a comment
			if scanner.Bytes()[0] == '#' {
				continue
			}

			entry.Reset()
			data := reflect.ValueOf(&entry).Elem()

			// scan in line
			line := scanner.Text()

			// track whether or not this line had an error when parsing any fields
			lineHadError := false

			// set the end index of the field itself to the index of the next tab (or separator)
			fieldEndIndex := strings.Index(line, header.separator)

			// set field counter
			idx := 0

			// loop through all but last fields in line
			for fieldEndIndex > -1 && idx < len(header.fieldOrder) {

				// check if the header field is in the struct
				if header.headerToStructMapping[header.fieldOrder[idx]] > -1 {
					value := line[:fieldEndIndex]

					// parse field if not empty or unset
					if value != header.emptyField && value != header.unsetField {

						// parse field by assigning the correlating struct field using reflection
						err := header.parseField(
							value,        // the field itself, sliced out of the line
							typeArr[idx], // the zeek type of the field
							data.Field(header.headerToStructMapping[header.fieldOrder[idx]])) // the struct field to update

						if err != nil {
							if warnLimiter.Allow() {
								logger.Warn().Err(err).
									Str("path", path).
									Str("field_name", header.fieldOrder[idx]).
									Str("field_value", value).
									Msg("failed to parse field in TSV Zeek log")
							}
							lineHadError = true
							previousLineHadError = true
						}
					}

				}
				// reslice line to first of next field to the end of the line
				line = line[fieldEndIndex+len(header.separator):]

				// update the end index of the field to the index of the next tab (or separator)
				fieldEndIndex = strings.Index(line, header.separator)
				idx++
			}

			if fieldEndIndex == -1 && idx < len(header.fieldOrder)-2 {
				logger.Err(errTruncated).Str("path", path).Send()
				return errTruncated
			}

			// parse in last field
			if idx < len(header.fieldOrder) && line != header.emptyField && line != header.unsetField &&
				header.headerToStructMapping[header.fieldOrder[idx]] > -1 {
				err := header.parseField(
					line,         // the last field, now the only thing left in line
					typeArr[idx], // the zeek type of the field
					data.Field(header.headerToStructMapping[header.fieldOrder[idx]])) // the struct field to update

				if err != nil {
					if warnLimiter.Allow() {
						logger.Warn().Err(err).
							Str("path", path).
							Str("field_name", header.fieldOrder[idx]).
							Str("field_value", line).
							Msg("failed to parse field in TSV Zeek log")
					}
					lineHadError = true
					previousLineHadError = true
				}
			}

			// increment file parsing error count if there were errors during field parsing
			if lineHadError {
				lineErrorCounter++
			}

			// return if parsing error limit for file was reached
			if lineErrorCounter > lineErrorLimit {
				logger.Warn().Str("path", path).Msg("log file is potentially corrupted")
				return errTooManyLineErrors
			}

			// send parsed entry on its channel
			entryChan <- entry
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Err(err).Str("path", path).Msg("failed to parse log file: could not scan the file")
		return fmt.Errorf("could not scan the file: %w", err)
	}

	// if last line of log had an error, indicate that file may be truncated
	if previousLineHadError {
		logger.Err(errTruncated).Str("path", path).Send()
		return errTruncated
	}

	return nil
}

// parseHeader parses the header of a Zeek log in TSV format
func (header *zeekHeader) parseHeader(line string) (typeArr []string, err error) {

	potentialFields := strings.Fields(line)
	// grabs from the comment # to the space to get the first field value
	potentialFieldName := potentialFields[0][1:]
	potentialFieldValue := ""
	if len(potentialFields) > 1 {
		potentialFieldValue = convertHexFieldValue(potentialFields[1])
	}

	switch potentialFieldName {
	case "separator":
		header.separator = potentialFieldValue
	case "set_separator":
		header.setSeparator = potentialFieldValue
	case "unset_field":
		header.unsetField = potentialFieldValue
	case "path":
		header.path = potentialFieldValue
	case "empty_field":
		header.emptyField = potentialFieldValue
	case "open":
		var dateParseErr error
		header.open, dateParseErr = time.Parse(ZeekDateTimeFmt, potentialFieldValue)
		if dateParseErr != nil {
			return nil, fmt.Errorf("date not parsed for open field: %v", dateParseErr.Error())
		}
	case "fields":
		header.rawFields = line
	case "types":
		header.rawTypes = line
	}

	// map zeek fields and types, get field order
	if len(header.rawFields) > 0 && len(header.rawTypes) > 0 {
		splitFields := strings.Fields(header.rawFields)
		splitTypes := strings.Fields(header.rawTypes)

		splitFields = splitFields[1:]
		splitTypes = splitTypes[1:]

		if len(splitTypes) == len(splitFields) {
			typeArr = make([]string, len(splitFields))
			for idx := range splitFields {
				// track the field names by the order they appear in the header
				header.fieldOrder = append(header.fieldOrder, splitFields[idx])
				// track the field types by the order they appear in the header
				typeArr[idx] = splitTypes[idx]
			}
			return typeArr, nil
		}

		return nil, fmt.Errorf("mismatched header fields. zeek types: %v, zeek fields: %v", splitTypes, splitFields)
	}

	return typeArr, nil
}

// mapHeader maps the names of the fields found in the log header to the corresponding
// struct field's index. This allows the struct to be dynamically populated using reflection.
func (header *zeekHeader) mapHeader() error {
	structType := reflect.TypeOf(ConnEntry{})

	// walk the fields of the conn entry, making sure each zeek-mapped field
	// carries both a name and a type tag
	for i := 0; i < structType.NumField(); i++ {
		structField := structType.Field(i)
		zeekName := structField.Tag.Get("zeek")
		zeekType := structField.Tag.Get("zeektype")

		// if this field is not associated with zeek, skip it
		if len(zeekName) == 0 && len(zeekType) == 0 {
			continue
		}

		if len(zeekName) == 0 || len(zeekType) == 0 {
			return errors.New("invalid zeek field")
		}

		header.headerToStructMapping[zeekName] = i
	}

	// make sure that fields that are in the header and not in the struct definition get ignored;
	// walks the fields of the header and sets the mapping for any header fields that are not
	// in the struct to a -1, otherwise looking up the map will return a 0 which will break parsing
	for _, headerName := range header.fieldOrder {
		if _, ok := header.headerToStructMapping[headerName]; !ok {
			header.headerToStructMapping[headerName] = -1
		}
	}

	return nil
}

// parseField parses a single field in a zeek log record
func (header *zeekHeader) parseField(value string, zeekType string, resultField reflect.Value) error {
	// handle data cleaning / conversion for the different zeek types
	switch zeekType {
	case "time":
		ts, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("couldn't convert zeektype time: %v", err.Error())
		}
		resultField.SetFloat(ts)
	case "interval":
		intervalFloat, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("couldn't convert zeektype interval: %v", err.Error())
		}
		resultField.SetFloat(intervalFloat)
	case "string":
		fallthrough
	case "enum":
		fallthrough
	case "addr":
		resultField.SetString(value)
	case "count":
		countInt, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("couldn't convert zeektype count: %v", err.Error())
		}
		resultField.SetInt(countInt)
	case "port":
		portInt, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("couldn't convert zeektype port: %v", err.Error())
		}
		resultField.SetInt(int64(portInt))
	case "bool":
		boolCvt, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("couldn't convert zeektype bool: %v", err.Error())
		}
		resultField.SetBool(boolCvt)
	default:
	}

	return nil
}

// validatePathPrefix returns an error if the TSV header path field does not match the prefix of the file's path name
func (header *zeekHeader) validatePathPrefix() error {
	if strings.HasPrefix(filepath.Base(header.fsPath), ConnPrefix) && header.path != ConnPrefix {
		return errMismatchedPathField
	}
	return nil
}

// convertHexFieldValue converts any hex encoded zeek field values to normal characters
// if err is true, conversion was not needed and original value is returned
// ie: tab char = \x09
func convertHexFieldValue(givenValue string) string {
	newValue, err := strconv.Unquote("\"" + givenValue + "\"")
	if err != nil {
		return givenValue
	}
	return newValue
}
