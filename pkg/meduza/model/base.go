package model

// Base is embedded in models. The tag on the embedded field names the table
// and schema, and ID is the primary key unless another field declares one.
//
//	type User struct {
//		model.Base `mdz:"table=Users,schema=app"`
//		Name       string `mdz:"name=name,required"`
//	}
type Base struct {
	ID string `mdz:"name=id,primary,type=Key"`
}
