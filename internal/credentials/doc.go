// Package credentials supplies the bearer token and api key sent with every
// storage request. Tokens are consumed, never minted: a Source reads them from
// config, environment, or a token file and reports services.ErrConfiguration
// when none is available.
package credentials
