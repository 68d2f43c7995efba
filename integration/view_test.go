package integration_test

import (
	"strings"

	"github.com/activecm/rcr/viewer"

	"github.com/stretchr/testify/require"
)

const csvHeader = "Log File,IP Address,Label,RCR,Coverage,Clusters,Outliers Removed,Total Connections,Insufficient Data,Reason"

func (it *EndToEndTestSuite) TestPipedCSVFilterByLabel() {
	t := it.T()

	csv, err := viewer.GetCSVOutput(it.set, "label:beacon-modal", 0)
	require.NoError(t, err)

	expected := strings.Join([]string{
		csvHeader,
		`conn_beta.log,45.33.102.7,beacon-modal,66.67%,2 / 3,1,0,24,false,""`,
	}, "\n")
	require.Equal(t, expected, csv)
}

func (it *EndToEndTestSuite) TestPipedCSVNumericFilter() {
	t := it.T()

	// the score filter works in percent, unscored pairs never match
	csv, err := viewer.GetCSVOutput(it.set, "rcr:>50", 0)
	require.NoError(t, err)

	expected := strings.Join([]string{
		csvHeader,
		`conn_alpha.log,10.44.200.5,beacon-tight,100.00%,1 / 1,1,0,72,false,""`,
		`conn_beta.log,104.131.5.18,outlier-clipped,100.00%,1 / 1,1,2,42,false,""`,
		`conn_beta.log,45.33.102.7,beacon-modal,66.67%,2 / 3,1,0,24,false,""`,
	}, "\n")
	require.Equal(t, expected, csv)
}

func (it *EndToEndTestSuite) TestPipedCSVInsufficientRows() {
	t := it.T()

	csv, err := viewer.GetCSVOutput(it.set, "insufficient:true", 0)
	require.NoError(t, err)

	expected := strings.Join([]string{
		csvHeader,
		`conn_alpha.log,192.241.77.60,constant-size,N/A,N/A,1,0,30,true,"zero-width selected range"`,
		`conn_alpha.log,198.51.100.9,absent-host,N/A,N/A,0,0,0,true,"no matching connections"`,
		`conn_beta.log,178.62.3.99,sparse-sample,N/A,N/A,0,0,1,true,"not enough payload sizes to select a range: need at least 2 sizes, have 1"`,
	}, "\n")
	require.Equal(t, expected, csv)
}

func (it *EndToEndTestSuite) TestPipedCSVLimit() {
	t := it.T()

	csv, err := viewer.GetCSVOutput(it.set, "", 2)
	require.NoError(t, err)

	expected := strings.Join([]string{
		csvHeader,
		`conn_alpha.log,10.44.200.5,beacon-tight,100.00%,1 / 1,1,0,72,false,""`,
		`conn_alpha.log,172.104.9.88,web-spread,0.00%,0 / 35,0,0,45,false,""`,
	}, "\n")
	require.Equal(t, expected, csv)
}
