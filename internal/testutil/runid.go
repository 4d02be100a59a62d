package testutil

import "github.com/google/uuid"

// FixedRunID is the run identifier used by golden-file tests so that SimID
// columns are byte-identical between runs.
var FixedRunID = uuid.MustParse("0190b7c2-5f4e-7a3b-9c1d-2e3f4a5b6c7d")

// FixedRunIDString is FixedRunID in canonical text form.
const FixedRunIDString = "0190b7c2-5f4e-7a3b-9c1d-2e3f4a5b6c7d"
