package epmc

// searchResponse is the JSON envelope returned by the EPMC REST search endpoint.
type searchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []searchResult `json:"result"`
	} `json:"resultList"`
}

type searchResult struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	PMID         string `json:"pmid"`
	PMCID        string `json:"pmcid"`
	DOI          string `json:"doi"`
	Title        string `json:"title"`
	InEPMC       string `json:"inEPMC"`
	IsOpenAccess string `json:"isOpenAccess"`
	JournalInfo  struct {
		Journal struct {
			Title string `json:"title"`
			ISSN  string `json:"issn"`
			ESSN  string `json:"essn"`
		} `json:"journal"`
	} `json:"journalInfo"`
	BookOrReportDetails struct {
		Publisher string `json:"publisher"`
	} `json:"bookOrReportDetails"`
}

// Metadata is one EPMC search hit, reduced to the fields the pipeline reads.
// InEPMC and IsOA hold EPMC's "Y"/"N" flags verbatim.
type Metadata struct {
	PMCID        string
	PMID         string
	DOI          string
	Title        string
	InEPMC       string
	IsOA         string
	ISSN         string
	EISSN        string
	JournalTitle string
	Publisher    string
}

func (r searchResult) toMetadata() Metadata {
	return Metadata{
		PMCID:        r.PMCID,
		PMID:         r.PMID,
		DOI:          r.DOI,
		Title:        r.Title,
		InEPMC:       r.InEPMC,
		IsOA:         r.IsOpenAccess,
		ISSN:         r.JournalInfo.Journal.ISSN,
		EISSN:        r.JournalInfo.Journal.ESSN,
		JournalTitle: r.JournalInfo.Journal.Title,
		Publisher:    r.BookOrReportDetails.Publisher,
	}
}
