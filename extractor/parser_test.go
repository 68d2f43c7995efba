package extractor

import (
	"reflect"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestParseConnTSV(t *testing.T) {
	afs := afero.NewOsFs()

	records, err := LoadConnRecords(afs, "../test_data/valid_tsv/conn.log")
	require.NoError(t, err, "parsing a valid TSV conn log should not produce an error")
	require.Len(t, records, 13, "every log line should produce a record")

	first, ok := records[0].(ConnEntry)
	require.True(t, ok, "records should be conn entries")
	require.InDelta(t, 1715910000.134512, first.TimeStamp, 1e-6)
	require.Equal(t, "CUM0KZ3MLUfNB0cl11", first.UID)
	require.Equal(t, "10.55.100.111", first.Src)
	require.Equal(t, 53422, first.SrcPort)
	require.Equal(t, "165.227.88.15", first.Dst)
	require.Equal(t, 443, first.DstPort)
	require.Equal(t, "tcp", first.Proto)
	require.InDelta(t, 1.189011, first.Duration, 1e-6)
	require.EqualValues(t, 4403, first.OrigIPBytes)

	// line 12 was logged with unset byte counts, the parser must keep that
	// distinguishable from a connection that truly sent zero bytes
	size, ok := records[11].PayloadSize()
	require.False(t, ok, "an unset orig_ip_bytes field should not report a payload size")
	require.Zero(t, size)

	require.Equal(t, "8.8.8.8", records[12].Destination())
	size, ok = records[12].PayloadSize()
	require.True(t, ok)
	require.EqualValues(t, 620, size)
}

func TestParseConnJSON(t *testing.T) {
	afs := afero.NewOsFs()

	records, err := LoadConnRecords(afs, "../test_data/valid_json/conn.log")
	require.NoError(t, err, "parsing a valid JSON conn log should not produce an error")
	require.Len(t, records, 5, "every log line should produce a record")

	first, ok := records[0].(ConnEntry)
	require.True(t, ok, "records should be conn entries")
	require.InDelta(t, 1715910000.134512, first.TimeStamp, 1e-6)
	require.Equal(t, "10.55.100.104", first.Src)
	require.Equal(t, "159.65.77.234", first.Dst)
	require.EqualValues(t, 1200, first.OrigIPBytes)

	// line 4 has no orig_ip_bytes key at all
	size, ok := records[3].PayloadSize()
	require.False(t, ok, "a missing orig_ip_bytes key should not report a payload size")
	require.Zero(t, size)
}

func TestParseConnGzip(t *testing.T) {
	afs := afero.NewOsFs()

	records, err := LoadConnRecords(afs, "../test_data/gzipped/conn.log.gz")
	require.NoError(t, err, "parsing a gzipped conn log should not produce an error")

	expected, err := LoadConnRecords(afs, "../test_data/valid_tsv/conn.log")
	require.NoError(t, err)
	require.Equal(t, expected, records, "a gzipped log should parse identically to its uncompressed form")
}

func TestParseEmptyLog(t *testing.T) {
	afs := afero.NewOsFs()

	records, err := LoadConnRecords(afs, "../test_data/empty/conn.log")
	require.NoError(t, err, "an empty log should parse without error")
	require.Empty(t, records, "an empty log should produce no records")
}

func TestParseMalformedLines(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		expectedCount int
	}{
		{name: "TSV Line With Bad Timestamp", path: "../test_data/malformed_tsv/conn.log", expectedCount: 4},
		{name: "JSON Line That Fails to Unmarshal", path: "../test_data/malformed_json/conn.log", expectedCount: 3},
	}

	afs := afero.NewOsFs()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := LoadConnRecords(afs, test.path)
			require.NoError(t, err, "a handful of bad lines should not fail the whole file")
			require.Len(t, records, test.expectedCount)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name             string
		path             string
		expectedError    error
		expectedContains string
	}{
		{name: "Truncated TSV", path: "../test_data/truncated_tsv/conn.log", expectedError: errTruncated},
		{name: "Too Many Bad Lines", path: "../test_data/corrupt_tsv/conn.log", expectedError: errTooManyLineErrors},
		{name: "Not a Zeek Log", path: "../test_data/text_file/conn.log", expectedError: errUnknownFileType},
		{name: "Mismatched Header Fields", path: "../test_data/bad_header/conn.log", expectedContains: "mismatched header fields"},
		{name: "Nonexistent File", path: "../test_data/does_not_exist/conn.log", expectedContains: "could not determine if file is empty"},
	}

	afs := afero.NewOsFs()
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			records, err := LoadConnRecords(afs, test.path)
			if test.expectedError != nil {
				require.ErrorIs(t, err, test.expectedError)
			} else {
				require.ErrorContains(t, err, test.expectedContains)
			}
			require.Nil(t, records, "a failed parse should not return partial records")
		})
	}
}

func TestParseMismatchedPathField(t *testing.T) {
	afs := afero.NewOsFs()

	// a conn file whose header claims to be a dns log parses anyway, the
	// mismatch is only worth a warning
	records, err := LoadConnRecords(afs, "../test_data/mismatched_path/conn.log")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestParseHeader(t *testing.T) {
	var header zeekHeader

	lines := []string{
		"#separator \\x09",
		"#set_separator\t,",
		"#empty_field\t(empty)",
		"#unset_field\t-",
		"#path\tconn",
		"#open\t2024-05-17-02-20-01",
		"#fields\tts\tid.orig_h\tid.resp_h\torig_ip_bytes",
	}
	for _, line := range lines {
		typeArr, err := header.parseHeader(line)
		require.NoError(t, err)
		require.Nil(t, typeArr, "types are not known until the types line is seen")
	}

	typeArr, err := header.parseHeader("#types\ttime\taddr\taddr\tcount")
	require.NoError(t, err)

	require.Equal(t, "\t", header.separator, "the hex encoded separator should be converted")
	require.Equal(t, ",", header.setSeparator)
	require.Equal(t, "(empty)", header.emptyField)
	require.Equal(t, "-", header.unsetField)
	require.Equal(t, "conn", header.path)
	require.Equal(t, []string{"ts", "id.orig_h", "id.resp_h", "orig_ip_bytes"}, header.fieldOrder)
	require.Equal(t, []string{"time", "addr", "addr", "count"}, typeArr)
}

func TestParseHeaderMismatchedTypes(t *testing.T) {
	var header zeekHeader

	_, err := header.parseHeader("#fields\tts\tuid\tid.orig_h")
	require.NoError(t, err)
	_, err = header.parseHeader("#types\ttime\tstring")
	require.ErrorContains(t, err, "mismatched header fields")
}

func TestMapHeader(t *testing.T) {
	header := zeekHeader{
		fieldOrder:            []string{"ts", "uid", "id.orig_h", "service", "orig_ip_bytes"},
		headerToStructMapping: make(map[string]int),
	}

	err := header.mapHeader()
	require.NoError(t, err)

	connType := reflect.TypeOf(ConnEntry{})
	for i := 0; i < connType.NumField(); i++ {
		zeekName := connType.Field(i).Tag.Get("zeek")
		require.Equal(t, i, header.headerToStructMapping[zeekName], "each tagged struct field should map to its own index")
	}

	require.Equal(t, -1, header.headerToStructMapping["service"], "header fields absent from the struct should map to -1")
}

func TestParseField(t *testing.T) {
	var header zeekHeader
	var entry ConnEntry
	data := reflect.ValueOf(&entry).Elem()

	tests := []struct {
		name          string
		value         string
		zeekType      string
		field         string
		expectedError bool
		check         func(t *testing.T)
	}{
		{name: "Time", value: "1715910000.134512", zeekType: "time", field: "TimeStamp", check: func(t *testing.T) {
			require.InDelta(t, 1715910000.134512, entry.TimeStamp, 1e-6)
		}},
		{name: "Addr", value: "165.227.88.15", zeekType: "addr", field: "Dst", check: func(t *testing.T) {
			require.Equal(t, "165.227.88.15", entry.Dst)
		}},
		{name: "Port", value: "443", zeekType: "port", field: "DstPort", check: func(t *testing.T) {
			require.Equal(t, 443, entry.DstPort)
		}},
		{name: "Count", value: "4403", zeekType: "count", field: "OrigIPBytes", check: func(t *testing.T) {
			require.EqualValues(t, 4403, entry.OrigIPBytes)
		}},
		{name: "Interval", value: "1.189011", zeekType: "interval", field: "Duration", check: func(t *testing.T) {
			require.InDelta(t, 1.189011, entry.Duration, 1e-6)
		}},
		{name: "Bad Time", value: "pizza", zeekType: "time", field: "TimeStamp", expectedError: true},
		{name: "Bad Count", value: "4.5", zeekType: "count", field: "OrigIPBytes", expectedError: true},
		{name: "Bad Port", value: "https", zeekType: "port", field: "DstPort", expectedError: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := header.parseField(test.value, test.zeekType, data.FieldByName(test.field))
			if test.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			test.check(t)
		})
	}
}

func TestValidatePathPrefix(t *testing.T) {
	tests := []struct {
		name          string
		fsPath        string
		headerPath    string
		expectedError error
	}{
		{name: "Matching Conn Log", fsPath: "/opt/zeek/logs/conn.log", headerPath: "conn"},
		{name: "Mismatched Conn Log", fsPath: "/opt/zeek/logs/conn.log", headerPath: "dns", expectedError: errMismatchedPathField},
		{name: "Not a Conn Log", fsPath: "/opt/zeek/logs/dns.log", headerPath: "dns"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			header := zeekHeader{fsPath: test.fsPath, path: test.headerPath}
			err := header.validatePathPrefix()
			if test.expectedError != nil {
				require.ErrorIs(t, err, test.expectedError)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConvertHexFieldValue(t *testing.T) {
	require.Equal(t, "\t", convertHexFieldValue(`\x09`), "hex encoded tab should be converted")
	require.Equal(t, ",", convertHexFieldValue(","), "plain values should pass through")
	require.Equal(t, "(empty)", convertHexFieldValue("(empty)"))
}
