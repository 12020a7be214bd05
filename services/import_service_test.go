package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnodedash/models"
)

// 44 characters, like a base58 Solana pubkey
const testPubkey = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, models.FormatJSON, DetectFormat(`[{"pubkey":"x"}]`))
	assert.Equal(t, models.FormatJSON, DetectFormat("  \n{\"nodes\": []}"))
	assert.Equal(t, models.FormatCSV, DetectFormat("pubkey,status\nabc,online"))
	assert.Equal(t, models.FormatCSV, DetectFormat("[broken,\njson"))
	assert.Equal(t, models.FormatUnknown, DetectFormat("just some words"))
	assert.Equal(t, models.FormatUnknown, DetectFormat("a,b,c"))
	assert.Equal(t, models.FormatUnknown, DetectFormat(""))
}

func TestParseImportText_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"unknown", "hello", ErrUnknownFormat},
		{"header only", "pubkey,status\n", ErrNoRows},
		{"empty json array", "[]", ErrNoRows},
		{"json scalar elements", "[1, 2]", ErrMalformedJSON},
		{"json object without nodes", `{"rows": []}`, ErrMalformedJSON},
		{"unterminated quote", "pubkey,status\n\"abc,online\n", ErrMalformedCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseImportText(tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseImportText_CSVAliases(t *testing.T) {
	text := "Pubkey,STATUS,Health Score,uptime_days,Public,RPC Port,extra\n" +
		testPubkey + ",Online,88,12.5,yes,9000,kept\n"

	format, rows, err := ParseImportText(text)
	require.NoError(t, err)
	assert.Equal(t, models.FormatCSV, format)
	require.Len(t, rows, 1)

	assert.Equal(t, models.ImportRow{
		"pubkey":      testPubkey,
		"status":      "Online",
		"healthScore": "88",
		"uptime":      "12.5",
		"isPublic":    "yes",
		"rpcPort":     "9000",
		"extra":       "kept",
	}, rows[0])
}

func TestParseImportText_JSON(t *testing.T) {
	text := fmt.Sprintf(`{"nodes": [{"pubkey": %q, "status": "online", "uptime": 3.25, "isPublic": false, "rpcPort": 6000, "version": null}]}`, testPubkey)

	format, rows, err := ParseImportText(text)
	require.NoError(t, err)
	assert.Equal(t, models.FormatJSON, format)
	require.Len(t, rows, 1)
	assert.Equal(t, "3.25", rows[0]["uptime"])
	assert.Equal(t, "false", rows[0]["isPublic"])
	assert.Equal(t, "6000", rows[0]["rpcPort"])
	_, hasVersion := rows[0]["version"]
	assert.False(t, hasVersion)
}

func TestImport_OneValidOneMissingPubkey(t *testing.T) {
	svc := NewImportService(0, 0, nil, nil)

	result, err := svc.Import("pubkey,status\n" + testPubkey + ",online\n,offline")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 1, result.ImportedCount)
	assert.Equal(t, 1, result.SkippedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Row)
	assert.Equal(t, "pubkey", result.Errors[0].Field)

	require.Len(t, result.Nodes, 1)
	assert.Equal(t, testPubkey, result.Nodes[0].Pubkey)
	assert.Equal(t, 8899, result.Nodes[0].RpcPort)
}

func TestValidateRow(t *testing.T) {
	valid := models.ImportRow{"pubkey": testPubkey, "status": "OFFLINE"}
	assert.True(t, ValidateRow(1, valid).Valid())

	tests := []struct {
		field string
		value string
	}{
		{"status", "degraded"},
		{"healthScore", "101"},
		{"healthScore", "abc"},
		{"healthScore", "NaN"},
		{"uptime", "-1"},
		{"uptime", "NaN"},
		{"uptime", "Infinity"},
		{"storageTotal", "Inf"},
		{"storageUsed", "lots"},
		{"storageTotal", "-0.5"},
		{"isPublic", "maybe"},
		{"ip", "10.0.0"},
		{"ip", "host.example"},
		{"rpcPort", "0"},
		{"rpcPort", "65536"},
		{"rpcPort", "80.5"},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			row := models.ImportRow{"pubkey": testPubkey, "status": "online"}
			row[tt.field] = tt.value

			vr := ValidateRow(3, row)
			require.Len(t, vr.Errors, 1)
			assert.Equal(t, tt.field, vr.Errors[0].Field)
			assert.Equal(t, tt.value, vr.Errors[0].Value)
			assert.Equal(t, 3, vr.Errors[0].Row)
		})
	}
}

func TestValidateRow_AcceptedValues(t *testing.T) {
	for _, v := range []string{"true", "FALSE", "Yes", "no", "1", "0"} {
		row := models.ImportRow{"pubkey": testPubkey, "status": "online", "isPublic": v}
		assert.True(t, ValidateRow(1, row).Valid(), v)
	}

	// shape only, octets are not range checked
	row := models.ImportRow{"pubkey": testPubkey, "status": "online", "ip": "999.1.1.1", "rpcPort": "65535"}
	assert.True(t, ValidateRow(1, row).Valid())
}

func TestValidateRow_ShortPubkey(t *testing.T) {
	vr := ValidateRow(1, models.ImportRow{"pubkey": "abc", "status": "online"})
	require.Len(t, vr.Errors, 1)
	assert.Equal(t, "pubkey", vr.Errors[0].Field)
	assert.Contains(t, vr.Errors[0].Message, "32")
}

func TestConvertRow_Permissive(t *testing.T) {
	n := ConvertRow(models.ImportRow{
		"pubkey":            testPubkey,
		"status":            "Online",
		"uptime":            "not a number",
		"storageTotal":      "2048",
		"isPublic":          "yes",
		"rpcPort":           "70000",
		"lastSeenTimestamp": "1735689600000",
	})

	assert.Equal(t, "online", n.Status)
	assert.Zero(t, n.Uptime)
	assert.Equal(t, 2048.0, n.StorageTotal)
	assert.True(t, n.IsPublic)
	assert.Equal(t, DefaultRPCPort, n.RpcPort)
	assert.Equal(t, int64(1735689600000), n.LastSeenTimestamp)

	n = ConvertRow(models.ImportRow{"pubkey": testPubkey, "status": "online", "uptime": "NaN", "storageTotal": "+Inf"})
	assert.Zero(t, n.Uptime)
	assert.Zero(t, n.StorageTotal)
}

func TestImport_NonFiniteNumbersRejected(t *testing.T) {
	svc := NewImportService(0, 0, nil, nil)
	res, err := svc.Import("pubkey,status,uptime,storageTotal\n" + testPubkey + ",online,NaN,Inf\n")
	require.NoError(t, err)

	assert.Equal(t, 0, res.ImportedCount)
	assert.Equal(t, 1, res.SkippedCount)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "uptime", res.Errors[0].Field)
	assert.Equal(t, "storageTotal", res.Errors[1].Field)

	_, err = json.Marshal(res)
	assert.NoError(t, err)
}

func TestPreview_Limits(t *testing.T) {
	var b strings.Builder
	b.WriteString("pubkey,status\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "short%d,unknown\n", i)
	}

	svc := NewImportService(5, 20, nil, nil)
	preview, err := svc.Preview(b.String())
	require.NoError(t, err)

	assert.Equal(t, models.FormatCSV, preview.Format)
	assert.Len(t, preview.Rows, 5)
	assert.Equal(t, 30, preview.TotalRows)
	assert.Equal(t, 0, preview.ValidCount)
	assert.Equal(t, 30, preview.InvalidCount)
	// two errors per row, capped
	assert.Len(t, preview.Errors, 20)
	assert.True(t, preview.ErrorsTruncated)
}

func TestPreview_Defaults(t *testing.T) {
	svc := NewImportService(0, 0, nil, nil)
	preview, err := svc.Preview("pubkey,status\n" + testPubkey + ",online\n")
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 1)
	assert.Equal(t, 1, preview.ValidCount)
	assert.Empty(t, preview.Errors)
	assert.False(t, preview.ErrorsTruncated)
}
